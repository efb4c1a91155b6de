package deck

import (
	"fmt"
	"math"
	"sort"

	"github.com/Knetic/govaluate"

	"github.com/moonrise/moonrise/internal/domain/game"
)

// Config describes how many of each role a game of N players gets.
// Exact entries win over formulas; villagers fill whatever remains.
type Config struct {
	MinPlayers int                       `yaml:"min_players"`
	MaxPlayers int                       `yaml:"max_players"`
	Exact      map[int]map[game.Role]int `yaml:"exact"`
	Formulas   map[game.Role]string      `yaml:"formulas"`
}

// DefaultConfig is the standard role distribution.
func DefaultConfig() Config {
	return Config{
		MinPlayers: 4,
		MaxPlayers: 18,
		Formulas: map[game.Role]string{
			game.RoleWolf:   "1 + (players >= 8 ? 1 : 0) + (players >= 12 ? 1 : 0)",
			game.RoleSeer:   "1",
			game.RoleWitch:  "players >= 6 ? 1 : 0",
			game.RoleHunter: "players >= 7 ? 1 : 0",
			game.RoleCupid:  "players >= 8 ? 1 : 0",
			game.RoleThief:  "players >= 9 ? 1 : 0",
		},
	}
}

// Validate checks formulas compile and exact tables are consistent.
func (c Config) Validate() error {
	if c.MinPlayers < 1 {
		return fmt.Errorf("min_players must be positive")
	}
	if c.MaxPlayers != 0 && c.MaxPlayers < c.MinPlayers {
		return fmt.Errorf("max_players %d below min_players %d", c.MaxPlayers, c.MinPlayers)
	}
	for role, expr := range c.Formulas {
		if !role.Valid() {
			return fmt.Errorf("unknown role %q in formulas", role)
		}
		if _, err := govaluate.NewEvaluableExpression(expr); err != nil {
			return fmt.Errorf("formula for %s: %w", role, err)
		}
	}
	for n, table := range c.Exact {
		total := 0
		for role, qty := range table {
			if !role.Valid() {
				return fmt.Errorf("unknown role %q in exact table for %d players", role, n)
			}
			total += qty
		}
		if total != n {
			return fmt.Errorf("exact table for %d players sums to %d", n, total)
		}
	}
	return nil
}

// Quantities returns the role counts for n players, summing to n.
func (c Config) Quantities(n int) (map[game.Role]int, error) {
	if n < c.MinPlayers || (c.MaxPlayers > 0 && n > c.MaxPlayers) {
		return nil, fmt.Errorf("unsupported player count %d", n)
	}
	if table, ok := c.Exact[n]; ok {
		out := make(map[game.Role]int, len(table))
		total := 0
		for role, qty := range table {
			if qty > 0 {
				out[role] = qty
				total += qty
			}
		}
		if total != n {
			return nil, fmt.Errorf("exact table for %d players sums to %d", n, total)
		}
		return out, nil
	}

	out := make(map[game.Role]int)
	special := 0
	params := map[string]interface{}{"players": float64(n)}
	for _, role := range sortedRoles(c.Formulas) {
		if role == game.RoleVillager {
			continue
		}
		qty, err := evaluate(c.Formulas[role], params)
		if err != nil {
			return nil, fmt.Errorf("formula for %s: %w", role, err)
		}
		if qty > 0 {
			out[role] = qty
			special += qty
		}
	}
	if special > n {
		return nil, fmt.Errorf("%d special roles exceed %d players", special, n)
	}
	if n > special {
		out[game.RoleVillager] = n - special
	}
	return out, nil
}

func evaluate(expr string, params map[string]interface{}) (int, error) {
	e, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return 0, err
	}
	result, err := e.Evaluate(params)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("negative quantity %v", v)
		}
		return int(math.Floor(v)), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("formula did not evaluate to a number")
	}
}

func sortedRoles(m map[game.Role]string) []game.Role {
	out := make([]game.Role, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
