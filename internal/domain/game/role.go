package game

import "strings"

// Role is a secret role card.
type Role string

const (
	RoleVillager Role = "VILLAGER"
	RoleWolf     Role = "WOLF"
	RoleSeer     Role = "SEER"
	RoleWitch    Role = "WITCH"
	RoleHunter   Role = "HUNTER"
	RoleCupid    Role = "CUPID"
	RoleThief    Role = "THIEF"
)

// AllRoles lists the known roles in deck order.
var AllRoles = []Role{RoleWolf, RoleSeer, RoleWitch, RoleHunter, RoleCupid, RoleThief, RoleVillager}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, k := range AllRoles {
		if k == r {
			return true
		}
	}
	return false
}

// Faction returns the camp a role plays for.
func (r Role) Faction() Faction {
	if r == RoleWolf {
		return FactionWolves
	}
	return FactionVillage
}

// Group is the broadcast group name tied to holding r.
func (r Role) Group() string {
	if r == RoleWolf {
		return GroupWolves
	}
	return "role:" + strings.ToLower(string(r))
}

// Faction is a winning camp.
type Faction string

const (
	FactionVillage Faction = "VILLAGE"
	FactionWolves  Faction = "WOLVES"
)

// GroupWolves is the role-scoped group shared by all wolves.
const GroupWolves = "wolves"

// Winner is the outcome of a finished game.
type Winner string

const (
	WinnerNone    Winner = ""
	WinnerVillage Winner = "VILLAGE"
	WinnerWolves  Winner = "WOLVES"
	WinnerLovers  Winner = "LOVERS"
)

// LoverMode describes whether a bonded pair shares a faction.
type LoverMode string

const (
	LoversNone      LoverMode = ""
	LoversSameCamp  LoverMode = "SAME_CAMP"
	LoversMixedCamp LoverMode = "MIXED_CAMP"
)

// Cause says why somebody died.
type Cause string

const (
	CauseWolves Cause = "WOLVES"
	CausePoison Cause = "POISON"
	CauseHunter Cause = "HUNTER"
	CauseGrief  Cause = "GRIEF"
	CauseVote   Cause = "VOTE"
)

// Death is a pending or resolved death.
type Death struct {
	Victim string `json:"victim"`
	Cause  Cause  `json:"cause"`
	Role   Role   `json:"role,omitempty"`
}

// HunterShot records a hunter's retaliation.
type HunterShot struct {
	Hunter string `json:"hunter"`
	Target string `json:"target"`
	Auto   bool   `json:"auto"`
}
