package sqlite

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// ListFolders returns every folder ordered by parent and sibling index.
func (s *DB) ListFolders(ctx context.Context) ([]domain.Folder, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, parent_id, name, display_name, flags, tree_index, unread, unread_priority,
			resign_pending, mark_read_range_pending, join_pending
		FROM folders ORDER BY parent_id, tree_index, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []domain.Folder
	for rows.Next() {
		var f domain.Folder
		if err := rows.Scan(&f.ID, &f.ParentID, &f.Name, &f.DisplayName, &f.Flags, &f.Index,
			&f.Unread, &f.UnreadPriority, &f.ResignPending, &f.MarkReadRangePending, &f.JoinPending); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate folders: %w", err)
	}
	return folders, nil
}

// SaveFolder inserts or updates a folder. A zero ID is replaced by a newly
// assigned one.
func (s *DB) SaveFolder(ctx context.Context, f *domain.Folder) error {
	if f.ID == 0 {
		id, err := s.insertID(ctx, `
			INSERT INTO folders (parent_id, name, display_name, flags, tree_index, unread, unread_priority,
				resign_pending, mark_read_range_pending, join_pending)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ParentID, f.Name, f.DisplayName, f.Flags, f.Index, f.Unread, f.UnreadPriority,
			f.ResignPending, f.MarkReadRangePending, f.JoinPending,
		)
		if err != nil {
			return fmt.Errorf("failed to insert folder %s: %w", f.Name, err)
		}
		f.ID = id
		return nil
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO folders (id, parent_id, name, display_name, flags, tree_index, unread, unread_priority,
			resign_pending, mark_read_range_pending, join_pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id       = excluded.parent_id,
			name            = excluded.name,
			display_name    = excluded.display_name,
			flags           = excluded.flags,
			tree_index      = excluded.tree_index,
			unread          = excluded.unread,
			unread_priority = excluded.unread_priority,
			resign_pending  = excluded.resign_pending,
			mark_read_range_pending = excluded.mark_read_range_pending,
			join_pending    = excluded.join_pending`,
		f.ID, f.ParentID, f.Name, f.DisplayName, f.Flags, f.Index, f.Unread, f.UnreadPriority,
		f.ResignPending, f.MarkReadRangePending, f.JoinPending,
	)
	if err != nil {
		return fmt.Errorf("failed to save folder %d: %w", f.ID, err)
	}
	return nil
}

// DeleteFolder removes a folder row. Deleting a missing folder is not an error.
func (s *DB) DeleteFolder(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete folder %d: %w", id, err)
	}
	return nil
}
