package folders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/pending"
	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/store"
)

// target is a topic selected for fetching.
type target struct {
	id    int64
	forum string
	topic string
	since time.Time
}

// Refresh pushes pending changes and merges server deltas. A full refresh
// also merges the forum listing and fetches every joined topic; a fast one
// fetches only folders marked RefreshRequired. It returns early when the
// service is offline or busy or ctx is cancelled; topics merged so far are
// kept. A topic the server fails to deliver is marked RefreshRequired and
// reported in the returned error once the other topics are done.
func (c *Collection) Refresh(ctx context.Context, fast bool) error {
	if err := c.push(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	needListing := !fast || c.listingRequiredLocked()
	c.mu.Unlock()

	if needListing {
		forums, err := c.remote.ListForums(ctx)
		if err != nil {
			return fmt.Errorf("failed to list forums: %w", err)
		}
		c.mu.Lock()
		err = c.mergeListingLocked(ctx, forums)
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	global, err := c.store.GetGlobal(ctx)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to read sync cursor: %w", err)
	}
	targets := c.targetsLocked(fast, global.LastSync)
	c.mu.Unlock()

	var (
		merged  []int64
		skipped []error
	)
	defer func() {
		if len(merged) > 0 {
			c.finishRefresh(ctx, merged, fast)
		}
	}()

	for _, tg := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := c.log.WithField("folder", tg.forum+"/"+tg.topic)

		entries, err := c.remote.TopicMessages(ctx, tg.forum, tg.topic, tg.since)
		switch {
		case err == nil:
		case provider.IsRetryable(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("failed to fetch %s/%s: %w", tg.forum, tg.topic, err)
		case provider.IsGone(err):
			log.WithError(err).Info("Topic no longer exists, removing it")
			c.mu.Lock()
			err = c.removeLocked(ctx, tg.id)
			c.mu.Unlock()
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			continue
		default:
			log.WithError(err).Warn("Failed to fetch topic, will retry")
			c.mu.Lock()
			if f, ok := c.folders[tg.id]; ok {
				f.RefreshRequired = true
			}
			c.mu.Unlock()
			skipped = append(skipped, fmt.Errorf("failed to fetch %s/%s: %w", tg.forum, tg.topic, err))
			continue
		}

		c.mu.Lock()
		err = c.mergeTopicLocked(ctx, tg.id, entries)
		c.mu.Unlock()
		if err != nil {
			return err
		}
		merged = append(merged, tg.id)
	}
	return errors.Join(skipped...)
}

// finishRefresh recomputes unread totals and announces the merged topics.
func (c *Collection) finishRefresh(ctx context.Context, merged []int64, fast bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range merged {
		if f, ok := c.folders[id]; ok {
			f.RefreshRequired = false
			if parent, ok := c.folders[f.ParentID]; ok {
				parent.RefreshRequired = false
			}
			c.sink.Publish(events.Event{Kind: events.FolderRefreshed, ID: id, Name: c.pathLocked(f)})
		}
	}
	if _, err := c.rollupLocked(context.WithoutCancel(ctx)); err != nil {
		c.log.WithError(err).Error("Failed to recompute unread counts")
	}
	c.log.WithField("topics", len(merged)).WithField("fast", fast).Debug("Refresh done")
}

// CloseSync makes one last attempt to push pending changes before the
// cache is closed. Whatever fails stays pending in the store.
func (c *Collection) CloseSync(ctx context.Context) error {
	return c.push(ctx)
}

func (c *Collection) push(ctx context.Context) error {
	steps := []struct {
		kind string
		run  func() (pending.Result, error)
	}{
		{"join", func() (pending.Result, error) { return pending.Run(ctx, c.mu, "join", c.joinHandler()) }},
		{"post", func() (pending.Result, error) { return pending.Run(ctx, c.mu, "post", c.postHandler()) }},
		{"read", func() (pending.Result, error) { return pending.Run(ctx, c.mu, "read", c.readHandler()) }},
		{"star", func() (pending.Result, error) { return pending.Run(ctx, c.mu, "star", c.starHandler()) }},
		{"withdraw", func() (pending.Result, error) { return pending.Run(ctx, c.mu, "withdraw", c.withdrawHandler()) }},
		{"read-range", func() (pending.Result, error) { return pending.Run(ctx, c.mu, "read-range", c.markReadRangeHandler()) }},
		{"resign", func() (pending.Result, error) { return pending.Run(ctx, c.mu, "resign", c.resignHandler()) }},
	}
	for _, step := range steps {
		if _, err := step.run(); err != nil {
			return fmt.Errorf("failed to push %s changes: %w", step.kind, err)
		}
	}
	return nil
}

func (c *Collection) listingRequiredLocked() bool {
	for _, id := range c.children[domain.RootID] {
		f := c.folders[id]
		if f.RefreshRequired && !f.JoinPending && len(c.children[id]) == 0 {
			return true
		}
	}
	return false
}

// targetsLocked lists the topics to fetch in tree order. Topics without
// cached messages or marked for refresh are fetched from the beginning.
func (c *Collection) targetsLocked(fast bool, since time.Time) []target {
	var out []target
	for _, forumID := range c.children[domain.RootID] {
		forum := c.folders[forumID]
		if forum.JoinPending || forum.Has(domain.FolderResigned) {
			continue
		}
		for _, topicID := range c.children[forumID] {
			topic := c.folders[topicID]
			if topic.Has(domain.FolderResigned) {
				continue
			}
			required := topic.RefreshRequired || forum.RefreshRequired
			if fast && !required {
				continue
			}
			tg := target{id: topicID, forum: forum.Name, topic: topic.Name, since: since}
			if t := c.threads[topicID]; required || t == nil || t.Len() == 0 {
				tg.since = time.Time{}
			}
			out = append(out, tg)
		}
	}
	return out
}

// mergeListingLocked reconciles the joined forums and their topics with
// the server listing. Folders missing from the listing are removed unless
// they carry pending changes.
func (c *Collection) mergeListingLocked(ctx context.Context, forums []provider.ForumEntry) error {
	seen := make(map[int64]bool)

	for _, fe := range forums {
		forum, err := c.mergeListedFolderLocked(ctx, domain.RootID, fe.Name, fe.Title, fe.Flags)
		if err != nil {
			return err
		}
		seen[forum.ID] = true

		for _, te := range fe.Topics {
			topic, err := c.mergeListedFolderLocked(ctx, forum.ID, te.Name, te.Title, te.Flags)
			if err != nil {
				return err
			}
			seen[topic.ID] = true
		}
	}

	for _, id := range c.subtreeLocked(domain.RootID) {
		f, ok := c.folders[id]
		if !ok || seen[id] || c.holdsPendingLocked(id) {
			continue
		}
		c.log.WithField("folder", c.pathLocked(f)).Info("Folder no longer joined, removing it")
		if err := c.removeLocked(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) mergeListedFolderLocked(ctx context.Context, parentID int64, name, title string, flags uint32) (*domain.Folder, error) {
	f := c.childByNameLocked(parentID, name)
	if f == nil {
		return c.addLocked(ctx, domain.Folder{
			Name:            name,
			DisplayName:     title,
			Flags:           domain.FolderFlags(flags),
			RefreshRequired: true,
		}, parentID)
	}

	updated := *f
	updated.DisplayName = title
	updated.JoinPending = false
	if !f.ResignPending {
		updated.Flags = domain.FolderFlags(flags)
	}
	if updated == *f {
		return f, nil
	}
	*f = updated
	return f, c.saveFolderLocked(ctx, f)
}

// holdsPendingLocked reports whether a folder or anything below it has an
// unconfirmed local change.
func (c *Collection) holdsPendingLocked(id int64) bool {
	for _, fid := range c.subtreeLocked(id) {
		if c.folders[fid].HasPending() {
			return true
		}
		if t := c.threads[fid]; t != nil {
			for _, m := range t.Messages() {
				if m.HasPending() {
					return true
				}
			}
		}
	}
	return false
}

// mergeTopicLocked merges fetched messages into a topic. Fields guarded by
// a pending flag keep their local value. New messages run through the
// rules. Every write of the batch happens in one transaction and the
// cache is only updated after it commits.
func (c *Collection) mergeTopicLocked(ctx context.Context, topicID int64, entries []provider.MessageEntry) error {
	f, ok := c.folders[topicID]
	if !ok {
		return nil
	}
	forum, topic := c.locationLocked(topicID)
	t := c.threadLocked(topicID)

	var (
		updates []domain.Message
		inserts []*domain.Message
		fresh   = make(map[int]*domain.Message)
	)
	for _, e := range entries {
		if m := fresh[e.RemoteID]; m != nil {
			mergeEntry(m, e, f)
			continue
		}
		if cur := t.ByRemoteID(e.RemoteID); cur != nil {
			updated := *cur
			mergeEntry(&updated, e, f)
			if updated != *cur {
				updates = append(updates, updated)
			}
			continue
		}

		m := &domain.Message{TopicID: topicID, RemoteID: e.RemoteID, Priority: e.Priority}
		mergeEntry(m, e, f)
		if c.rules != nil {
			c.classifyLocked(m, forum, topic)
		}
		fresh[e.RemoteID] = m
		inserts = append(inserts, m)
	}
	if len(updates) == 0 && len(inserts) == 0 {
		return nil
	}

	err := c.store.WithTx(ctx, func(tx store.Store) error {
		for i := range updates {
			if err := tx.SaveMessage(ctx, &updates[i]); err != nil {
				return err
			}
		}
		for _, m := range inserts {
			if err := tx.SaveMessage(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to merge %s/%s: %w", forum, topic, err)
	}

	for i := range updates {
		if _, err := t.Add(&updates[i]); err != nil {
			return err
		}
		c.sink.Publish(events.Event{Kind: events.MessageChanged, ID: updates[i].ID})
	}
	for _, m := range inserts {
		if _, err := t.Add(m); err != nil {
			return err
		}
		c.topicOf[m.ID] = topicID
		c.sink.Publish(events.Event{Kind: events.MessageAdded, ID: m.ID, Name: forum + "/" + topic})
	}
	if n := t.Repair(); n > 0 {
		c.log.WithField("repaired", n).Debug("Re-parented messages")
	}
	c.log.WithField("folder", forum+"/"+topic).
		WithField("added", len(inserts)).
		WithField("updated", len(updates)).
		Debug("Merged topic")
	return nil
}

// classifyLocked runs the rules over a new message. Rule changes to state
// the server also keeps are made pending so they reach the server and
// survive later merges.
func (c *Collection) classifyLocked(m *domain.Message, forum, topic string) {
	unread, starred := m.Unread, m.Starred
	if !c.rules.ApplyRules(m, forum, topic) {
		return
	}
	if m.Unread != unread {
		m.ReadPending = true
	}
	if m.Starred != starred {
		m.StarPending = true
	}
	if m.ReadPending || m.StarPending {
		m.PendingToken = pending.NewToken()
	}
}

// mergeEntry copies server state into m, leaving alone every field a
// pending local change owns.
func mergeEntry(m *domain.Message, e provider.MessageEntry, topic *domain.Folder) {
	m.CommentID = e.CommentID
	m.RootID = e.RootID
	m.Author = e.Author
	m.Date = e.Date
	if e.Priority {
		m.Priority = true
	}
	if !m.WithdrawPending {
		m.Withdrawn = e.Withdrawn
		m.Body = e.Body
		if m.Withdrawn {
			m.Body = ""
		}
	}
	if !m.StarPending {
		m.Starred = e.Starred
	}
	switch {
	case m.ReadPending, m.ReadLocked && m.Unread:
	case topic.MarkReadRangePending && m.ID != 0 && !m.Unread:
	default:
		m.Unread = e.Unread
	}
}
