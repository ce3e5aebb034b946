// Package folders keeps the local mirror of the forum hierarchy and the
// messages held by each topic.
//
// Every exported method takes the shared cache lock for the duration of
// one logical operation. Network calls made by Refresh and CloseSync run
// without it.
package folders

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/store"
	"github.com/lu-zhengda/termcix/internal/thread"
)

// RuleApplier classifies newly arrived messages. It returns whether the
// message was changed.
type RuleApplier interface {
	ApplyRules(msg *domain.Message, forum, topic string) bool
}

// Options carries the optional collaborators of a Collection.
type Options struct {
	Sink     events.Sink
	Rules    RuleApplier
	Username string
	Now      func() time.Time
}

// Collection is the folder tree. Folders are kept in an arena keyed by ID
// with an ordered child list per parent; domain.RootID is the sentinel
// parent of the forums.
type Collection struct {
	store    store.Store
	remote   provider.Provider
	mu       sync.Locker
	sink     events.Sink
	rules    RuleApplier
	username string
	now      func() time.Time
	log      *logrus.Entry

	folders  map[int64]*domain.Folder
	children map[int64][]int64
	threads  map[int64]*thread.Collection
	topicOf  map[int64]int64
}

func New(st store.Store, remote provider.Provider, mu sync.Locker, opts Options) *Collection {
	c := &Collection{
		store:    st,
		remote:   remote,
		mu:       mu,
		sink:     opts.Sink,
		rules:    opts.Rules,
		username: opts.Username,
		now:      opts.Now,
		log:      logrus.WithField("pkg", "folders"),
	}
	if c.sink == nil {
		c.sink = events.Discard{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.reset()
	return c
}

func (c *Collection) reset() {
	c.folders = make(map[int64]*domain.Folder)
	c.children = make(map[int64][]int64)
	c.threads = make(map[int64]*thread.Collection)
	c.topicOf = make(map[int64]int64)
}

// Load reads every folder and message from the store and recomputes the
// unread totals.
func (c *Collection) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	folders, err := c.store.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load folders: %w", err)
	}
	msgs, err := c.store.ListMessages(ctx)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	c.reset()
	for i := range folders {
		f := folders[i]
		c.folders[f.ID] = &f
	}
	for _, f := range folders {
		parent := f.ParentID
		if _, ok := c.folders[parent]; !ok && parent != domain.RootID {
			c.log.WithField("folder", f.Name).Warn("Folder has no parent, moving it to the top level")
			c.folders[f.ID].ParentID = domain.RootID
			parent = domain.RootID
		}
		c.children[parent] = append(c.children[parent], f.ID)
	}
	for parent, ids := range c.children {
		slices.SortStableFunc(ids, func(a, b int64) int {
			return c.folders[a].Index - c.folders[b].Index
		})
		c.children[parent] = ids
	}

	byTopic := make(map[int64][]domain.Message)
	for _, m := range msgs {
		if _, ok := c.folders[m.TopicID]; !ok {
			c.log.WithField("message", m.ID).Warn("Message has no folder, skipping")
			continue
		}
		byTopic[m.TopicID] = append(byTopic[m.TopicID], m)
	}
	for topicID, list := range byTopic {
		t, err := thread.FromMessages(list)
		if err != nil {
			return fmt.Errorf("failed to thread messages of folder %d: %w", topicID, err)
		}
		c.threads[topicID] = t
		for _, m := range list {
			c.topicOf[m.ID] = topicID
		}
	}

	if _, err := c.rollupLocked(ctx); err != nil {
		return err
	}
	c.log.WithField("folders", len(c.folders)).WithField("messages", len(c.topicOf)).Debug("Loaded folders")
	return nil
}

// Add inserts folder as the last child of parentID and persists it. On
// success folder.ID and folder.Index hold the assigned values.
func (c *Collection) Add(ctx context.Context, folder *domain.Folder, parentID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.addLocked(ctx, *folder, parentID)
	if err != nil {
		return err
	}
	*folder = *f
	return nil
}

func (c *Collection) addLocked(ctx context.Context, folder domain.Folder, parentID int64) (*domain.Folder, error) {
	if folder.ID != 0 {
		if _, ok := c.folders[folder.ID]; ok {
			return nil, fmt.Errorf("failed to add folder %d: %w", folder.ID, domain.ErrDuplicateEntity)
		}
	}
	if parentID != domain.RootID {
		if _, ok := c.folders[parentID]; !ok {
			return nil, fmt.Errorf("failed to add folder under %d: %w", parentID, domain.ErrNotFound)
		}
	}
	if c.childByNameLocked(parentID, folder.Name) != nil {
		return nil, fmt.Errorf("failed to add folder %s: %w", folder.Name, domain.ErrDuplicateEntity)
	}

	folder.ParentID = parentID
	folder.Index = len(c.children[parentID])
	folder.Unread = 0
	folder.UnreadPriority = 0
	if err := c.store.SaveFolder(ctx, &folder); err != nil {
		return nil, fmt.Errorf("failed to add folder: %w", err)
	}

	f := &folder
	c.folders[f.ID] = f
	c.children[parentID] = append(c.children[parentID], f.ID)
	c.sink.Publish(events.Event{Kind: events.FolderAdded, ID: f.ID, Name: c.pathLocked(f)})
	return f, nil
}

// Remove deletes a folder, its descendants and their messages. Once the
// deletion is committed the ancestors' unread totals drop by the subtree's
// contribution.
func (c *Collection) Remove(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, id)
}

func (c *Collection) removeLocked(ctx context.Context, id int64) error {
	f, ok := c.folders[id]
	if !ok {
		return fmt.Errorf("failed to remove folder %d: %w", id, domain.ErrNotFound)
	}
	subtree := c.subtreeLocked(id)
	err := c.store.WithTx(ctx, func(tx store.Store) error {
		for _, fid := range slices.Backward(subtree) {
			if err := tx.DeleteTopicMessages(ctx, fid); err != nil {
				return err
			}
			if err := tx.DeleteFolder(ctx, fid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove folder %s: %w", f.Name, err)
	}

	name := c.pathLocked(f)
	for _, fid := range subtree {
		if t := c.threads[fid]; t != nil {
			for _, m := range t.Messages() {
				delete(c.topicOf, m.ID)
			}
		}
		delete(c.threads, fid)
		delete(c.children, fid)
		delete(c.folders, fid)
	}
	c.children[f.ParentID] = slices.DeleteFunc(c.children[f.ParentID], func(x int64) bool { return x == id })
	c.sink.Publish(events.Event{Kind: events.FolderDeleted, ID: id, Name: name})

	if err := c.adjustChainLocked(ctx, f.ParentID, -f.Unread, -f.UnreadPriority); err != nil {
		return err
	}
	return c.reindexLocked(ctx, f.ParentID)
}

// Move places a folder at position index among its siblings.
func (c *Collection) Move(ctx context.Context, id int64, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.folders[id]
	if !ok {
		return fmt.Errorf("failed to move folder %d: %w", id, domain.ErrNotFound)
	}
	siblings := slices.DeleteFunc(c.children[f.ParentID], func(x int64) bool { return x == id })
	index = max(0, min(index, len(siblings)))
	c.children[f.ParentID] = slices.Insert(siblings, index, id)
	return c.reindexLocked(ctx, f.ParentID)
}

// Reindex renumbers every sibling list to 0..n-1 and persists the folders
// whose index changed.
func (c *Collection) Reindex(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	parents := make([]int64, 0, len(c.children))
	for parent := range c.children {
		parents = append(parents, parent)
	}
	slices.Sort(parents)
	for _, parent := range parents {
		if err := c.reindexLocked(ctx, parent); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) reindexLocked(ctx context.Context, parentID int64) error {
	for i, id := range c.children[parentID] {
		f := c.folders[id]
		if f.Index == i {
			continue
		}
		f.Index = i
		if err := c.store.SaveFolder(ctx, f); err != nil {
			return fmt.Errorf("failed to reindex folder %s: %w", f.Name, err)
		}
	}
	return nil
}

// Folder returns a copy of the folder with the given ID.
func (c *Collection) Folder(id int64) (domain.Folder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.folders[id]; ok {
		return *f, true
	}
	return domain.Folder{}, false
}

// FolderByName finds a forum by name, or a topic when the name has the
// form "forum/topic".
func (c *Collection) FolderByName(name string) (domain.Folder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	forum, topic, _ := strings.Cut(name, "/")
	f := c.childByNameLocked(domain.RootID, forum)
	if f != nil && topic != "" {
		f = c.childByNameLocked(f.ID, topic)
	}
	if f == nil {
		return domain.Folder{}, false
	}
	return *f, true
}

// Topic finds a topic by forum and topic name.
func (c *Collection) Topic(forum, topic string) (domain.Folder, bool) {
	return c.FolderByName(forum + "/" + topic)
}

// Children returns the ordered children of a folder; domain.RootID lists
// the forums.
func (c *Collection) Children(id int64) []domain.Folder {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Folder, 0, len(c.children[id]))
	for _, cid := range c.children[id] {
		out = append(out, *c.folders[cid])
	}
	return out
}

// All returns every folder in tree order.
func (c *Collection) All() []domain.Folder {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Folder, 0, len(c.folders))
	for _, id := range c.subtreeLocked(domain.RootID) {
		out = append(out, *c.folders[id])
	}
	return out
}

// Path returns "forum/topic" for a topic and the name for a forum.
func (c *Collection) Path(id int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.folders[id]; ok {
		return c.pathLocked(f)
	}
	return ""
}

// TotalUnread is the unread count of the root: the sum over all forums.
func (c *Collection) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, id := range c.children[domain.RootID] {
		n += c.folders[id].Unread
	}
	return n
}

func (c *Collection) TotalUnreadPriority() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, id := range c.children[domain.RootID] {
		n += c.folders[id].UnreadPriority
	}
	return n
}

// RequestRefresh marks a folder and its descendants for the next fast sync.
func (c *Collection) RequestRefresh(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.folders[id]; !ok {
		return false
	}
	for _, fid := range c.subtreeLocked(id) {
		c.folders[fid].RefreshRequired = true
	}
	return true
}

func (c *Collection) childByNameLocked(parentID int64, name string) *domain.Folder {
	for _, id := range c.children[parentID] {
		if f := c.folders[id]; strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// subtreeLocked lists id and its descendants in pre-order. The root
// sentinel itself is not included.
func (c *Collection) subtreeLocked(id int64) []int64 {
	var out []int64
	var visit func(int64)
	visit = func(fid int64) {
		if fid != domain.RootID {
			out = append(out, fid)
		}
		for _, child := range c.children[fid] {
			visit(child)
		}
	}
	visit(id)
	return out
}

func (c *Collection) pathLocked(f *domain.Folder) string {
	if parent, ok := c.folders[f.ParentID]; ok {
		return parent.Name + "/" + f.Name
	}
	return f.Name
}

// locationLocked returns the forum and topic names used by the remote for
// a folder. Forums have an empty topic.
func (c *Collection) locationLocked(id int64) (forum, topic string) {
	f, ok := c.folders[id]
	if !ok {
		return "", ""
	}
	if parent, ok := c.folders[f.ParentID]; ok {
		return parent.Name, f.Name
	}
	return f.Name, ""
}
