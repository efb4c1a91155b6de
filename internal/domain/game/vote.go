package game

import "sort"

// Tally counts votes per target.
type Tally map[string]int

// CountBallots builds a tally from voter -> target ballots.
func CountBallots(ballots map[string]string) Tally {
	t := make(Tally, len(ballots))
	for _, target := range ballots {
		if target != "" {
			t[target]++
		}
	}
	return t
}

// Leaders returns the candidates sharing the highest count, sorted.
// An empty tally has no leaders.
func (t Tally) Leaders() []string {
	max := 0
	for _, n := range t {
		if n > max {
			max = n
		}
	}
	if max == 0 {
		return nil
	}
	var out []string
	for id, n := range t {
		if n == max {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Plurality returns the single leader, or "" when the tally is empty or tied.
func (t Tally) Plurality() (string, []string) {
	leaders := t.Leaders()
	if len(leaders) == 1 {
		return leaders[0], leaders
	}
	return "", leaders
}
