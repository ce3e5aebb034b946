package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// GetGlobal reads the singleton metadata row.
func (s *DB) GetGlobal(ctx context.Context) (*domain.Global, error) {
	var (
		g        domain.Global
		lastSync string
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT version, last_sync FROM globals WHERE id = 1`,
	).Scan(&g.Version, &lastSync)
	if err != nil {
		return nil, fmt.Errorf("failed to get globals: %w", err)
	}
	if g.LastSync, err = parseTime(lastSync); err != nil {
		return nil, fmt.Errorf("failed to parse last sync: %w", err)
	}
	return &g, nil
}

// SetGlobal writes the singleton metadata row.
func (s *DB) SetGlobal(ctx context.Context, g *domain.Global) error {
	lastSync := ""
	if !g.LastSync.IsZero() {
		lastSync = formatTime(g.LastSync)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO globals (id, version, last_sync) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version   = excluded.version,
			last_sync = excluded.last_sync`,
		g.Version, lastSync,
	)
	if err != nil {
		return fmt.Errorf("failed to set globals: %w", err)
	}
	return nil
}

// LoadRules returns the serialized rule list, or nil if none was saved.
func (s *DB) LoadRules(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := s.q.QueryRowContext(ctx, `SELECT blob FROM rules WHERE id = 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return blob, nil
}

// SaveRules replaces the serialized rule list.
func (s *DB) SaveRules(ctx context.Context, blob []byte) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO rules (id, blob) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET blob = excluded.blob`,
		blob,
	)
	if err != nil {
		return fmt.Errorf("failed to save rules: %w", err)
	}
	return nil
}
