package archive

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import "context"

// Repository persists finished games.
type Repository interface {
	Save(ctx context.Context, r *Record) error
	Get(ctx context.Context, sessionID string) (*Record, error)
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
}
