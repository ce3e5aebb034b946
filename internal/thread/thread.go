// Package thread rebuilds reply trees from the flat message list of a topic.
//
// Messages live in an arena keyed by local ID. Parent links are resolved
// from each message's CommentID (the parent's server number) into a
// separate adjacency map, so nothing holds a pointer that can dangle when a
// message is removed or re-parented. A message whose parent is not present
// yet is a pseudo-root: it is listed with the roots until the parent arrives.
package thread

import (
	"fmt"
	"slices"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// Collection holds the messages of one topic.
type Collection struct {
	messages map[int64]*domain.Message
	byRemote map[int]int64
	parent   map[int64]int64
	children map[int64][]int64
	roots    []int64
	pseudo   map[int64]struct{}
	// waiting maps a missing parent's server number to the pseudo-roots
	// that reference it.
	waiting map[int][]int64
	// links records the numbers each message is currently indexed and
	// attached under, so callers may mutate a stored message in place.
	links map[int64]link
}

type link struct {
	remote  int
	comment int
}

func New() *Collection {
	return &Collection{
		messages: make(map[int64]*domain.Message),
		byRemote: make(map[int]int64),
		parent:   make(map[int64]int64),
		children: make(map[int64][]int64),
		pseudo:   make(map[int64]struct{}),
		waiting:  make(map[int][]int64),
		links:    make(map[int64]link),
	}
}

// FromMessages builds a collection from stored messages in any order.
func FromMessages(msgs []domain.Message) (*Collection, error) {
	c := New()
	for i := range msgs {
		m := msgs[i]
		if _, err := c.Add(&m); err != nil {
			return nil, err
		}
	}
	c.Repair()
	return c, nil
}

// Add inserts m, or updates the stored message with the same ID, and
// reports whether the thread shape changed. The collection keeps m for new
// messages; for known IDs the stored message is overwritten in place.
func (c *Collection) Add(m *domain.Message) (bool, error) {
	if m.ID == 0 {
		return false, fmt.Errorf("failed to add message to thread: %w", domain.ErrNotPersisted)
	}

	if cur, ok := c.messages[m.ID]; ok {
		old := c.links[cur.ID]
		if cur != m {
			*cur = *m
		}
		if cur.RemoteID == old.remote && cur.CommentID == old.comment {
			return false, nil
		}
		c.detach(cur.ID)
		c.unindex(cur.ID)
		c.index(cur)
		c.attach(cur.ID)
		return true, nil
	}

	c.messages[m.ID] = m
	c.index(m)
	c.attach(m.ID)
	return true, nil
}

// index registers m's server number and adopts pseudo-roots waiting for it.
func (c *Collection) index(m *domain.Message) {
	l := c.links[m.ID]
	l.remote = m.RemoteID
	c.links[m.ID] = l
	if m.RemoteID == 0 {
		return
	}
	c.byRemote[m.RemoteID] = m.ID
	waiters := c.waiting[m.RemoteID]
	delete(c.waiting, m.RemoteID)
	for _, id := range waiters {
		c.detach(id)
		c.attach(id)
	}
}

func (c *Collection) unindex(id int64) {
	if r := c.links[id].remote; r != 0 && c.byRemote[r] == id {
		delete(c.byRemote, r)
	}
}

// Delete removes a message. Its children become pseudo-roots.
func (c *Collection) Delete(id int64) bool {
	if _, ok := c.messages[id]; !ok {
		return false
	}
	c.detach(id)
	c.unindex(id)
	delete(c.messages, id)
	delete(c.links, id)
	for _, child := range slices.Clone(c.children[id]) {
		c.detach(child)
		c.attach(child)
	}
	delete(c.children, id)
	return true
}

// Confirm moves a locally posted message into the server's number space.
func (c *Collection) Confirm(id int64, remoteID int) bool {
	m, ok := c.messages[id]
	if !ok {
		return false
	}
	c.unindex(id)
	m.RemoteID = remoteID
	c.index(m)
	return true
}

// Repair re-parents every pseudo-root whose parent is now present and
// returns how many were attached.
func (c *Collection) Repair() int {
	ids := make([]int64, 0, len(c.pseudo))
	for id := range c.pseudo {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	repaired := 0
	for _, id := range ids {
		c.detach(id)
		c.attach(id)
		if _, still := c.pseudo[id]; !still {
			repaired++
		}
	}
	return repaired
}

func (c *Collection) attach(id int64) {
	m := c.messages[id]
	l := c.links[id]
	l.comment = m.CommentID
	c.links[id] = l
	if m.CommentID == 0 || m.CommentID == m.RemoteID {
		c.roots = insertSorted(c.roots, id)
		return
	}
	if pid, ok := c.byRemote[m.CommentID]; ok && !c.isAncestor(id, pid) {
		c.parent[id] = pid
		c.children[pid] = insertSorted(c.children[pid], id)
		return
	}
	c.pseudo[id] = struct{}{}
	c.roots = insertSorted(c.roots, id)
	c.waiting[m.CommentID] = append(c.waiting[m.CommentID], id)
}

func (c *Collection) detach(id int64) {
	if pid, ok := c.parent[id]; ok {
		c.children[pid] = removeSorted(c.children[pid], id)
		if len(c.children[pid]) == 0 {
			delete(c.children, pid)
		}
		delete(c.parent, id)
		return
	}
	c.roots = removeSorted(c.roots, id)
	if _, ok := c.pseudo[id]; ok {
		delete(c.pseudo, id)
		comment := c.links[id].comment
		c.waiting[comment] = slices.DeleteFunc(c.waiting[comment], func(w int64) bool { return w == id })
		if len(c.waiting[comment]) == 0 {
			delete(c.waiting, comment)
		}
	}
}

// isAncestor reports whether a is b or one of b's ancestors.
func (c *Collection) isAncestor(a, b int64) bool {
	for cur := b; ; {
		if cur == a {
			return true
		}
		next, ok := c.parent[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

func insertSorted(ids []int64, id int64) []int64 {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}

func removeSorted(ids []int64, id int64) []int64 {
	i, found := slices.BinarySearch(ids, id)
	if !found {
		return ids
	}
	return slices.Delete(ids, i, i+1)
}

// Get returns the message with the given local ID.
func (c *Collection) Get(id int64) *domain.Message {
	return c.messages[id]
}

// ByRemoteID returns the message with the given server number.
func (c *Collection) ByRemoteID(remoteID int) *domain.Message {
	if id, ok := c.byRemote[remoteID]; ok {
		return c.messages[id]
	}
	return nil
}

func (c *Collection) Len() int {
	return len(c.messages)
}

// Messages returns every message in ID order.
func (c *Collection) Messages() []*domain.Message {
	ids := make([]int64, 0, len(c.messages))
	for id := range c.messages {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return c.lookup(ids)
}

// Roots returns the roots and pseudo-roots in ID order.
func (c *Collection) Roots() []*domain.Message {
	return c.lookup(c.roots)
}

// ChildrenOf returns the direct replies to a message in ID order.
func (c *Collection) ChildrenOf(id int64) []*domain.Message {
	return c.lookup(c.children[id])
}

// Parent returns the resolved parent of a message, or nil for roots and
// pseudo-roots.
func (c *Collection) Parent(id int64) *domain.Message {
	if pid, ok := c.parent[id]; ok {
		return c.messages[pid]
	}
	return nil
}

// IsPseudoRoot reports whether the message waits for a missing parent.
func (c *Collection) IsPseudoRoot(id int64) bool {
	_, ok := c.pseudo[id]
	return ok
}

// PseudoRoots returns the IDs of messages waiting for their parent.
func (c *Collection) PseudoRoots() []int64 {
	ids := make([]int64, 0, len(c.pseudo))
	for id := range c.pseudo {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Collection) lookup(ids []int64) []*domain.Message {
	out := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.messages[id])
	}
	return out
}
