package deck

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/moonrise/moonrise/internal/domain/game"
)

// CenterSize is the number of leftover cards when a thief is in play.
const CenterSize = 2

// Hand is the result of a deal.
type Hand struct {
	Assignments map[string]game.Role
	Center      []game.Role
	Order       []string
}

// Build lays out the deck for the given quantities. A thief adds two
// villager cards that are never dealt.
func Build(quantities map[game.Role]int) []game.Role {
	var cards []game.Role
	for _, role := range game.AllRoles {
		for i := 0; i < quantities[role]; i++ {
			cards = append(cards, role)
		}
	}
	if quantities[game.RoleThief] > 0 {
		for i := 0; i < CenterSize; i++ {
			cards = append(cards, game.RoleVillager)
		}
	}
	return cards
}

// Deal builds, shuffles, and deals a deck for ids.
func Deal(ids []string, cfg Config) (*Hand, error) {
	q, err := cfg.Quantities(len(ids))
	if err != nil {
		return nil, err
	}
	cards := Build(q)
	if err := Shuffle(cards); err != nil {
		return nil, err
	}

	order := append([]string(nil), ids...)
	if err := Shuffle(order); err != nil {
		return nil, err
	}

	n := len(order)
	dealt, center := cards[:n], cards[n:]
	if q[game.RoleThief] > 0 && !contains(dealt, game.RoleThief) {
		for i, c := range center {
			if c == game.RoleThief {
				dealt[n-1], center[i] = center[i], dealt[n-1]
				break
			}
		}
	}

	h := &Hand{
		Assignments: make(map[string]game.Role, n),
		Center:      append([]game.Role(nil), center...),
		Order:       order,
	}
	for i, id := range order {
		h.Assignments[id] = dealt[i]
	}
	if len(h.Assignments) != len(ids) {
		return nil, fmt.Errorf("duplicate participant ids")
	}
	return h, nil
}

// Shuffle permutes s in place with a Fisher-Yates shuffle over crypto/rand.
func Shuffle[T any](s []T) error {
	for i := len(s) - 1; i > 0; i-- {
		j, err := Intn(i + 1)
		if err != nil {
			return err
		}
		s[i], s[j] = s[j], s[i]
	}
	return nil
}

// Intn returns a uniform integer in [0, n) from crypto/rand.
func Intn(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid bound %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return int(v.Int64()), nil
}

// Pick returns a uniformly random element of s. s must be non-empty.
func Pick[T any](s []T) T {
	i, err := Intn(len(s))
	if err != nil {
		i = 0
	}
	return s[i]
}

func contains(cards []game.Role, r game.Role) bool {
	for _, c := range cards {
		if c == r {
			return true
		}
	}
	return false
}
