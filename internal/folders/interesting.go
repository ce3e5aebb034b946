package folders

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/provider"
)

// ActiveThread is a thread the service lists as active. TopicID and
// MessageID are zero when the topic or the root message is not cached.
type ActiveThread struct {
	provider.ThreadEntry
	TopicID   int64
	MessageID int64
}

// ActiveThreads fetches the service's list of active threads and matches
// each one to the cache.
func (c *Collection) ActiveThreads(ctx context.Context) ([]ActiveThread, error) {
	entries, err := c.remote.InterestingThreads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active threads: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ActiveThread, 0, len(entries))
	for _, e := range entries {
		at := ActiveThread{ThreadEntry: e}
		if forum := c.childByNameLocked(domain.RootID, e.Forum); forum != nil {
			if topic := c.childByNameLocked(forum.ID, e.Topic); topic != nil {
				at.TopicID = topic.ID
				if t := c.threads[topic.ID]; t != nil {
					if m := t.ByRemoteID(e.RemoteID); m != nil {
						at.MessageID = m.ID
					}
				}
			}
		}
		out = append(out, at)
	}
	return out, nil
}
