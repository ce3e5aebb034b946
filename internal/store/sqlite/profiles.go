package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// ListProfiles returns every cached profile ordered by username.
func (s *DB) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, username, full_name, email, location, sex, about, flags,
			first_on, last_on, last_post, fetched, pending, pending_token
		FROM profiles ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var (
			p     domain.Profile
			times [4]string
		)
		if err := rows.Scan(&p.ID, &p.Username, &p.FullName, &p.Email, &p.Location, &p.Sex, &p.About, &p.Flags,
			&times[0], &times[1], &times[2], &times[3], &p.Pending, &p.PendingToken); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		for i, dst := range []*time.Time{&p.FirstOn, &p.LastOn, &p.LastPost, &p.Fetched} {
			if *dst, err = parseTime(times[i]); err != nil {
				return nil, fmt.Errorf("failed to read profile of %s: %w", p.Username, err)
			}
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// SaveProfile inserts or updates a profile keyed by username and sets its
// ID.
func (s *DB) SaveProfile(ctx context.Context, p *domain.Profile) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO profiles (username, full_name, email, location, sex, about, flags,
			first_on, last_on, last_post, fetched, pending, pending_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			full_name     = excluded.full_name,
			email         = excluded.email,
			location      = excluded.location,
			sex           = excluded.sex,
			about         = excluded.about,
			flags         = excluded.flags,
			first_on      = excluded.first_on,
			last_on       = excluded.last_on,
			last_post     = excluded.last_post,
			fetched       = excluded.fetched,
			pending       = excluded.pending,
			pending_token = excluded.pending_token`,
		p.Username, p.FullName, p.Email, p.Location, p.Sex, p.About, p.Flags,
		optionalTime(p.FirstOn), optionalTime(p.LastOn), optionalTime(p.LastPost), optionalTime(p.Fetched),
		p.Pending, p.PendingToken,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile of %s: %w", p.Username, err)
	}
	if err := s.q.QueryRowContext(ctx, `SELECT id FROM profiles WHERE username = ?`, p.Username).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to read profile id: %w", err)
	}
	return nil
}

// optionalTime stores the zero time as an empty string.
func optionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}
