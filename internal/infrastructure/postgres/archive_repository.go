package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moonrise/moonrise/internal/domain/archive"
	"github.com/moonrise/moonrise/internal/domain/game"
)

// ArchiveRepository implements archive.Repository.
type ArchiveRepository struct {
	pool *pgxpool.Pool
}

func NewArchiveRepository(pool *pgxpool.Pool) *ArchiveRepository {
	return &ArchiveRepository{pool: pool}
}

// Save inserts rec, replacing an earlier record for the same session.
func (r *ArchiveRepository) Save(ctx context.Context, rec *archive.Record) error {
	roles, err := json.Marshal(rec.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	lovers, err := json.Marshal(nonNil(rec.Lovers))
	if err != nil {
		return fmt.Errorf("marshal lovers: %w", err)
	}
	deaths, err := json.Marshal(nonNil(rec.Deaths))
	if err != nil {
		return fmt.Errorf("marshal deaths: %w", err)
	}
	history, err := json.Marshal(nonNil(rec.History))
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO game_archive
		(session_id, winner, rounds, roles, lovers, deaths, history, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (session_id) DO UPDATE SET
			winner=EXCLUDED.winner, rounds=EXCLUDED.rounds, roles=EXCLUDED.roles,
			lovers=EXCLUDED.lovers, deaths=EXCLUDED.deaths, history=EXCLUDED.history,
			started_at=EXCLUDED.started_at, ended_at=EXCLUDED.ended_at
	`, rec.SessionID, string(rec.Winner), rec.Rounds, roles, lovers, deaths, history, rec.StartedAt, rec.EndedAt)
	if err != nil {
		return fmt.Errorf("insert archive %s: %w", rec.SessionID, err)
	}
	return nil
}

// Get returns the record for sessionID, or nil when none exists.
func (r *ArchiveRepository) Get(ctx context.Context, sessionID string) (*archive.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT session_id, winner, rounds, roles, lovers, deaths, history, started_at, ended_at
		FROM game_archive WHERE session_id=$1
	`, sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListRecent returns up to limit records, most recently ended first.
func (r *ArchiveRepository) ListRecent(ctx context.Context, limit int) ([]*archive.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, winner, rounds, roles, lovers, deaths, history, started_at, ended_at
		FROM game_archive ORDER BY ended_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*archive.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*archive.Record, error) {
	var (
		rec                            archive.Record
		winner                         string
		roles, lovers, deaths, history []byte
	)
	if err := row.Scan(&rec.SessionID, &winner, &rec.Rounds, &roles, &lovers, &deaths, &history, &rec.StartedAt, &rec.EndedAt); err != nil {
		return nil, err
	}
	rec.Winner = game.Winner(winner)
	for _, f := range []struct {
		data []byte
		dst  any
	}{
		{roles, &rec.Roles},
		{lovers, &rec.Lovers},
		{deaths, &rec.Deaths},
		{history, &rec.History},
	} {
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return nil, fmt.Errorf("decode archive %s: %w", rec.SessionID, err)
		}
	}
	return &rec, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
