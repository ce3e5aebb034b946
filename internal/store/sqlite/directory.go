package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// ListDirCategories returns every directory category.
func (s *DB) ListDirCategories(ctx context.Context) ([]domain.DirCategory, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, sub FROM dir_categories ORDER BY name, sub`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var cats []domain.DirCategory
	for rows.Next() {
		var c domain.DirCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Sub); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return cats, nil
}

// SaveDirCategory inserts a category/subcategory pair if it is not already
// known and sets its ID.
func (s *DB) SaveDirCategory(ctx context.Context, c *domain.DirCategory) error {
	if _, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO dir_categories (name, sub) VALUES (?, ?)`, c.Name, c.Sub); err != nil {
		return fmt.Errorf("failed to save category %s/%s: %w", c.Name, c.Sub, err)
	}
	if err := s.q.QueryRowContext(ctx,
		`SELECT id FROM dir_categories WHERE name = ? AND sub = ?`, c.Name, c.Sub).Scan(&c.ID); err != nil {
		return fmt.Errorf("failed to read category id: %w", err)
	}
	return nil
}

// ListDirForums returns every directory forum ordered by name.
func (s *DB) ListDirForums(ctx context.Context) ([]domain.DirForum, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, title, descr, type, cat, sub, recent, moderators, participants,
			added_mods, removed_mods, added_parts, removed_parts, details_pending, pending_token
		FROM dir_forums ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory forums: %w", err)
	}
	defer rows.Close()

	var forums []domain.DirForum
	for rows.Next() {
		var f domain.DirForum
		var mods, parts, addedMods, removedMods, addedParts, removedParts string
		if err := rows.Scan(&f.ID, &f.Name, &f.Title, &f.Desc, &f.Type, &f.Cat, &f.Sub, &f.Recent,
			&mods, &parts, &addedMods, &removedMods, &addedParts, &removedParts,
			&f.DetailsPending, &f.PendingToken); err != nil {
			return nil, fmt.Errorf("failed to scan directory forum: %w", err)
		}
		lists := []struct {
			src string
			dst *[]string
		}{
			{mods, &f.Moderators}, {parts, &f.Participants},
			{addedMods, &f.AddedMods}, {removedMods, &f.RemovedMods},
			{addedParts, &f.AddedParts}, {removedParts, &f.RemovedParts},
		}
		for _, l := range lists {
			if err := json.Unmarshal([]byte(l.src), l.dst); err != nil {
				return nil, fmt.Errorf("failed to unmarshal member list of %s: %w", f.Name, err)
			}
		}
		forums = append(forums, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate directory forums: %w", err)
	}
	return forums, nil
}

// SaveDirForum inserts or updates a directory forum keyed by name.
func (s *DB) SaveDirForum(ctx context.Context, f *domain.DirForum) error {
	lists := make([]string, 0, 6)
	for _, l := range [][]string{f.Moderators, f.Participants, f.AddedMods, f.RemovedMods, f.AddedParts, f.RemovedParts} {
		if l == nil {
			l = []string{}
		}
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to marshal member list of %s: %w", f.Name, err)
		}
		lists = append(lists, string(data))
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO dir_forums (name, title, descr, type, cat, sub, recent, moderators, participants,
			added_mods, removed_mods, added_parts, removed_parts, details_pending, pending_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			title           = excluded.title,
			descr           = excluded.descr,
			type            = excluded.type,
			cat             = excluded.cat,
			sub             = excluded.sub,
			recent          = excluded.recent,
			moderators      = excluded.moderators,
			participants    = excluded.participants,
			added_mods      = excluded.added_mods,
			removed_mods    = excluded.removed_mods,
			added_parts     = excluded.added_parts,
			removed_parts   = excluded.removed_parts,
			details_pending = excluded.details_pending,
			pending_token   = excluded.pending_token`,
		f.Name, f.Title, f.Desc, f.Type, f.Cat, f.Sub, f.Recent,
		lists[0], lists[1], lists[2], lists[3], lists[4], lists[5],
		f.DetailsPending, f.PendingToken,
	)
	if err != nil {
		return fmt.Errorf("failed to save directory forum %s: %w", f.Name, err)
	}
	if err := s.q.QueryRowContext(ctx, `SELECT id FROM dir_forums WHERE name = ?`, f.Name).Scan(&f.ID); err != nil {
		return fmt.Errorf("failed to read directory forum id: %w", err)
	}
	return nil
}
