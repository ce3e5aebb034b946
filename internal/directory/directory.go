// Package directory mirrors the service's forum directory: every forum
// that can be joined, grouped by category, with a keyword index for search
// and locally edited member lists that are pushed on sync.
package directory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/store"
)

type Collection struct {
	store  store.Store
	remote provider.Provider
	mu     sync.Locker
	sink   events.Sink
	log    *logrus.Entry

	forums map[string]*domain.DirForum
	cats   []domain.DirCategory
	index  index
}

func New(st store.Store, remote provider.Provider, mu sync.Locker, sink events.Sink) *Collection {
	if sink == nil {
		sink = events.Discard{}
	}
	return &Collection{
		store:  st,
		remote: remote,
		mu:     mu,
		sink:   sink,
		log:    logrus.WithField("pkg", "directory"),
		forums: make(map[string]*domain.DirForum),
		index:  make(index),
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

// Load reads the stored directory.
func (c *Collection) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cats, err := c.store.ListDirCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	forums, err := c.store.ListDirForums(ctx)
	if err != nil {
		return fmt.Errorf("failed to load directory: %w", err)
	}
	c.cats = cats
	c.forums = make(map[string]*domain.DirForum, len(forums))
	for i := range forums {
		c.forums[key(forums[i].Name)] = &forums[i]
	}
	c.reindexLocked()
	c.log.WithField("forums", len(c.forums)).Debug("Loaded directory")
	return nil
}

func (c *Collection) reindexLocked() {
	c.index = make(index)
	for k, f := range c.forums {
		c.index.add(k, f.Name, f.Title, f.Desc)
	}
}

// Refresh replaces the listing with the server's. Member lists are not part
// of the listing and are kept, as are unpushed member edits.
func (c *Collection) Refresh(ctx context.Context) error {
	entries, err := c.remote.ListDirectory(ctx)
	if err != nil {
		return fmt.Errorf("failed to list directory: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		forums []*domain.DirForum
		cats   []domain.DirCategory
		seen   = make(map[domain.DirCategory]bool)
	)
	for _, e := range entries {
		f := &domain.DirForum{}
		if old, ok := c.forums[key(e.Name)]; ok {
			*f = *old
		}
		f.Name, f.Title, f.Desc, f.Type, f.Cat, f.Sub, f.Recent = e.Name, e.Title, e.Desc, e.Type, e.Cat, e.Sub, e.Recent
		forums = append(forums, f)

		cat := domain.DirCategory{Name: e.Cat, Sub: e.Sub}
		if e.Cat != "" && !seen[cat] {
			seen[cat] = true
			cats = append(cats, cat)
		}
	}

	err = c.store.WithTx(ctx, func(tx store.Store) error {
		for i := range cats {
			if err := tx.SaveDirCategory(ctx, &cats[i]); err != nil {
				return err
			}
		}
		for _, f := range forums {
			if err := tx.SaveDirForum(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store directory: %w", err)
	}

	for _, f := range forums {
		c.forums[key(f.Name)] = f
	}
	for _, cat := range cats {
		if !slices.Contains(c.cats, cat) {
			c.cats = append(c.cats, cat)
		}
	}
	c.reindexLocked()
	c.sink.Publish(events.Event{Kind: events.DirectoryChanged})
	c.log.WithField("forums", len(entries)).Info("Directory refreshed")
	return nil
}

// RefreshForum fetches the details of one forum, including its members.
// Unpushed member edits are laid over the server's lists.
func (c *Collection) RefreshForum(ctx context.Context, name string) (domain.DirForum, error) {
	e, err := c.remote.ForumDetails(ctx, name)
	if err != nil {
		return domain.DirForum{}, fmt.Errorf("failed to fetch details of %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f := &domain.DirForum{}
	if old, ok := c.forums[key(name)]; ok {
		*f = *old
	}
	f.Name, f.Title, f.Desc, f.Type, f.Cat, f.Sub, f.Recent = e.Name, e.Title, e.Desc, e.Type, e.Cat, e.Sub, e.Recent
	f.Moderators = applyDelta(e.Moderators, f.AddedMods, f.RemovedMods)
	f.Participants = applyDelta(e.Participants, f.AddedParts, f.RemovedParts)

	if err := c.saveLocked(ctx, f); err != nil {
		return domain.DirForum{}, err
	}
	return cloneForum(f), nil
}

func (c *Collection) saveLocked(ctx context.Context, f *domain.DirForum) error {
	if err := c.store.SaveDirForum(ctx, f); err != nil {
		return fmt.Errorf("failed to save directory forum %s: %w", f.Name, err)
	}
	k := key(f.Name)
	c.forums[k] = f
	c.index.remove(k)
	c.index.add(k, f.Name, f.Title, f.Desc)
	c.sink.Publish(events.Event{Kind: events.DirectoryChanged, Name: f.Name})
	return nil
}

// Categories returns the distinct category names in order.
func (c *Collection) Categories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, cat := range c.cats {
		if !slices.Contains(out, cat.Name) {
			out = append(out, cat.Name)
		}
	}
	slices.SortFunc(out, compareFold)
	return out
}

// SubCategories returns the subcategories of a category in order.
func (c *Collection) SubCategories(category string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, cat := range c.cats {
		if strings.EqualFold(cat.Name, category) && cat.Sub != "" && !slices.Contains(out, cat.Sub) {
			out = append(out, cat.Sub)
		}
	}
	slices.SortFunc(out, compareFold)
	return out
}

// ForumsByCategory returns the forums filed under category and, when sub
// is not empty, under that subcategory.
func (c *Collection) ForumsByCategory(category, sub string) []domain.DirForum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collectLocked(func(f *domain.DirForum) bool {
		return strings.EqualFold(f.Cat, category) && (sub == "" || strings.EqualFold(f.Sub, sub))
	})
}

func (c *Collection) ForumByName(name string) (domain.DirForum, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.forums[key(name)]; ok {
		return cloneForum(f), true
	}
	return domain.DirForum{}, false
}

func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.forums)
}

// Search returns the forums whose name, title or description contain every
// word of text. The last word matches as a prefix.
func (c *Collection) Search(text string) []domain.DirForum {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.index.search(text)
	if keys == nil {
		return nil
	}
	return c.collectLocked(func(f *domain.DirForum) bool {
		_, ok := keys[key(f.Name)]
		return ok
	})
}

func (c *Collection) collectLocked(keep func(*domain.DirForum) bool) []domain.DirForum {
	var out []domain.DirForum
	for _, f := range c.forums {
		if keep(f) {
			out = append(out, cloneForum(f))
		}
	}
	slices.SortFunc(out, func(a, b domain.DirForum) int { return compareFold(a.Name, b.Name) })
	return out
}

func compareFold(a, b string) int {
	return cmp.Compare(strings.ToLower(a), strings.ToLower(b))
}

func cloneForum(f *domain.DirForum) domain.DirForum {
	out := *f
	out.Moderators = slices.Clone(f.Moderators)
	out.Participants = slices.Clone(f.Participants)
	out.AddedMods = slices.Clone(f.AddedMods)
	out.RemovedMods = slices.Clone(f.RemovedMods)
	out.AddedParts = slices.Clone(f.AddedParts)
	out.RemovedParts = slices.Clone(f.RemovedParts)
	return out
}

// applyDelta returns list with removed dropped and added appended. Names
// compare case-insensitively.
func applyDelta(list, added, removed []string) []string {
	out := slices.DeleteFunc(slices.Clone(list), func(s string) bool {
		return containsFold(removed, s)
	})
	for _, a := range added {
		if !containsFold(out, a) {
			out = append(out, a)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}

// without returns list minus s.
func without(list []string, s string) []string {
	return slices.DeleteFunc(slices.Clone(list), func(v string) bool { return strings.EqualFold(v, s) })
}

