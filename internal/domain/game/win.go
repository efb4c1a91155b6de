package game

// EvaluateWinner computes the winning faction from the alive set and lover bonds.
// WinnerNone means the game continues.
func EvaluateWinner(s *Session) Winner {
	alive := s.AliveIDs()

	if len(alive) == 2 && s.LoverMode == LoversMixedCamp && s.LoverOf(alive[0]) == alive[1] {
		return WinnerLovers
	}

	wolves := 0
	for _, id := range alive {
		if s.Roles[id].Faction() == FactionWolves {
			wolves++
		}
	}
	if wolves == 0 {
		return WinnerVillage
	}
	if wolves == len(alive) && wolvesDominate(s) {
		return WinnerWolves
	}
	return WinnerNone
}

// wolvesDominate recounts from the participant list rather than the cached
// alive slice so a stale count never ends the game.
func wolvesDominate(s *Session) bool {
	wolves, others := 0, 0
	for _, p := range s.Participants {
		if !s.Alive[p.ID] {
			continue
		}
		if s.Roles[p.ID].Faction() == FactionWolves {
			wolves++
		} else {
			others++
		}
	}
	return wolves > 0 && others == 0
}
