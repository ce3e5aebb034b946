package thread

import (
	"iter"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// Threaded yields messages depth first, each parent before its replies and
// siblings in ID order, together with their indentation level. Each call
// starts a fresh walk. The collection must not change while a walk is in
// progress.
func (c *Collection) Threaded() iter.Seq2[*domain.Message, int] {
	return func(yield func(*domain.Message, int) bool) {
		type frame struct {
			id    int64
			level int
		}
		stack := make([]frame, 0, len(c.roots))
		for i := len(c.roots) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: c.roots[i]})
		}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(c.messages[f.id], f.level) {
				return
			}
			kids := c.children[f.id]
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, frame{id: kids[i], level: f.level + 1})
			}
		}
	}
}

// Ordered collects Threaded into a slice.
func (c *Collection) Ordered() []*domain.Message {
	out := make([]*domain.Message, 0, len(c.messages))
	for m := range c.Threaded() {
		out = append(out, m)
	}
	return out
}

// Subtree yields a message and all of its replies depth first.
func (c *Collection) Subtree(id int64) iter.Seq[*domain.Message] {
	return func(yield func(*domain.Message) bool) {
		if _, ok := c.messages[id]; !ok {
			return
		}
		stack := []int64{id}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(c.messages[cur]) {
				return
			}
			kids := c.children[cur]
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, kids[i])
			}
		}
	}
}

// Level is the depth of a message below its root. Roots and pseudo-roots
// are at level 0.
func (c *Collection) Level(id int64) int {
	level := 0
	for cur := id; ; level++ {
		next, ok := c.parent[cur]
		if !ok {
			return level
		}
		cur = next
	}
}

// Root returns the top of the thread containing the message.
func (c *Collection) Root(id int64) *domain.Message {
	if _, ok := c.messages[id]; !ok {
		return nil
	}
	cur := id
	for {
		next, ok := c.parent[cur]
		if !ok {
			return c.messages[cur]
		}
		cur = next
	}
}

// UnreadChildren counts the unread replies below a message at any depth.
func (c *Collection) UnreadChildren(id int64) int {
	n := 0
	for m := range c.Subtree(id) {
		if m.ID != id && m.CountsUnread() {
			n++
		}
	}
	return n
}

// Unread counts the unread and unread-priority messages of the topic.
func (c *Collection) Unread() (unread, priority int) {
	for _, m := range c.messages {
		if m.CountsUnread() {
			unread++
		}
		if m.CountsPriority() {
			priority++
		}
	}
	return unread, priority
}
