// Package providertest provides an in-memory provider for tests.
package providertest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lu-zhengda/termcix/internal/provider"
)

var _ provider.Provider = (*Fake)(nil)

type topic struct {
	entry    provider.TopicEntry
	messages []provider.MessageEntry
}

type forum struct {
	entry  provider.ForumEntry
	joined bool
	topics []*topic
}

type conversation struct {
	entry  provider.ConversationEntry
	outbox bool
}

// Fake is a small in-memory service. Every method fails with
// provider.ErrOffline while the fake is offline; Fail injects errors per
// operation name.
type Fake struct {
	Username string

	mu        sync.Mutex
	offline   bool
	failures  map[string][]error
	calls     []string
	forums    []*forum
	convs     []*conversation
	directory []provider.DirForumEntry
	profiles  map[string]*provider.ProfileEntry
	who       []provider.WhoEntry
	threads   []provider.ThreadEntry
	nextID    int
	now       time.Time
}

func New(username string) *Fake {
	return &Fake{
		Username: username,
		failures: make(map[string][]error),
		profiles: make(map[string]*provider.ProfileEntry),
		nextID:   1000,
		now:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// SetOffline switches the fake between reachable and unreachable.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// Fail queues errors returned by the next calls to op, one per call.
func (f *Fake) Fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// Calls returns the operation names invoked so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount counts the invocations of op.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// AddForum registers a forum with the given topics. Joined forums appear
// in ListForums; others can be joined.
func (f *Fake) AddForum(name string, joined bool, topics ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fo := &forum{entry: provider.ForumEntry{Name: name, Title: name}, joined: joined}
	for _, t := range topics {
		fo.topics = append(fo.topics, &topic{entry: provider.TopicEntry{Name: t, Title: t}})
	}
	f.forums = append(f.forums, fo)
}

// AddMessage stores a message in a topic and returns its server number.
// A zero RemoteID is assigned.
func (f *Fake) AddMessage(forumName, topicName string, m provider.MessageEntry) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.topic(forumName, topicName)
	if t == nil {
		panic(fmt.Sprintf("providertest: unknown topic %s/%s", forumName, topicName))
	}
	if m.RemoteID == 0 {
		m.RemoteID = f.id()
	}
	if m.Date.IsZero() {
		m.Date = f.tick()
	}
	t.messages = append(t.messages, m)
	return m.RemoteID
}

// Message returns the server copy of a message.
func (f *Fake) Message(forumName, topicName string, remoteID int) (provider.MessageEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m := f.message(forumName, topicName, remoteID); m != nil {
		return *m, true
	}
	return provider.MessageEntry{}, false
}

// AddConversation stores a conversation in the inbox or outbox and returns
// its server number.
func (f *Fake) AddConversation(c provider.ConversationEntry, outbox bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.RemoteID == 0 {
		c.RemoteID = f.id()
	}
	if c.Date.IsZero() {
		c.Date = f.tick()
	}
	for i := range c.Messages {
		if c.Messages[i].RemoteID == 0 {
			c.Messages[i].RemoteID = f.id()
		}
	}
	f.convs = append(f.convs, &conversation{entry: c, outbox: outbox})
	return c.RemoteID
}

// Conversation returns the server copy of a conversation.
func (f *Fake) Conversation(remoteID int) (provider.ConversationEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.conversation(remoteID); c != nil {
		return c.entry, true
	}
	return provider.ConversationEntry{}, false
}

// AddDirectoryForum adds a directory listing entry.
func (f *Fake) AddDirectoryForum(e provider.DirForumEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directory = append(f.directory, e)
}

// DirectoryForum returns the server copy of a directory entry.
func (f *Fake) DirectoryForum(name string) (provider.DirForumEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e := f.dirForum(name); e != nil {
		return *e, true
	}
	return provider.DirForumEntry{}, false
}

// AddProfile stores a user's profile, replacing any earlier one.
func (f *Fake) AddProfile(p provider.ProfileEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[strings.ToLower(p.Username)] = &p
}

// ProfileOf returns the server copy of a profile.
func (f *Fake) ProfileOf(username string) (provider.ProfileEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[strings.ToLower(username)]; ok {
		return *p, true
	}
	return provider.ProfileEntry{}, false
}

// AddWho records a user as recently online.
func (f *Fake) AddWho(e provider.WhoEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.who = append(f.who, e)
}

// AddInteresting appends a thread to the active threads list.
func (f *Fake) AddInteresting(e provider.ThreadEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads = append(f.threads, e)
}

func (f *Fake) id() int {
	f.nextID++
	return f.nextID
}

func (f *Fake) tick() time.Time {
	f.now = f.now.Add(time.Minute)
	return f.now
}

// begin records the call and returns the error the call must fail with.
func (f *Fake) begin(ctx context.Context, op string) error {
	f.calls = append(f.calls, op)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.offline {
		return provider.ErrOffline
	}
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *Fake) forum(name string) *forum {
	for _, fo := range f.forums {
		if strings.EqualFold(fo.entry.Name, name) {
			return fo
		}
	}
	return nil
}

func (f *Fake) topic(forumName, topicName string) *topic {
	fo := f.forum(forumName)
	if fo == nil {
		return nil
	}
	for _, t := range fo.topics {
		if strings.EqualFold(t.entry.Name, topicName) {
			return t
		}
	}
	return nil
}

func (f *Fake) message(forumName, topicName string, remoteID int) *provider.MessageEntry {
	t := f.topic(forumName, topicName)
	if t == nil {
		return nil
	}
	for i := range t.messages {
		if t.messages[i].RemoteID == remoteID {
			return &t.messages[i]
		}
	}
	return nil
}

func (f *Fake) conversation(remoteID int) *conversation {
	for _, c := range f.convs {
		if c.entry.RemoteID == remoteID {
			return c
		}
	}
	return nil
}

func (f *Fake) dirForum(name string) *provider.DirForumEntry {
	for i := range f.directory {
		if strings.EqualFold(f.directory[i].Name, name) {
			return &f.directory[i]
		}
	}
	return nil
}

func (f *Fake) ListForums(ctx context.Context) ([]provider.ForumEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ListForums"); err != nil {
		return nil, err
	}
	var out []provider.ForumEntry
	for _, fo := range f.forums {
		if !fo.joined {
			continue
		}
		e := fo.entry
		e.Topics = nil
		for _, t := range fo.topics {
			te := t.entry
			te.Unread = 0
			for _, m := range t.messages {
				if m.Unread {
					te.Unread++
				}
			}
			e.Topics = append(e.Topics, te)
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *Fake) TopicMessages(ctx context.Context, forumName, topicName string, since time.Time) ([]provider.MessageEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "TopicMessages"); err != nil {
		return nil, err
	}
	t := f.topic(forumName, topicName)
	if t == nil {
		return nil, provider.ErrNoSuchForum
	}
	var out []provider.MessageEntry
	for _, m := range t.messages {
		if since.IsZero() || m.Date.After(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *Fake) PostMessage(ctx context.Context, post provider.Post) (provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "PostMessage"); err != nil {
		return provider.Receipt{}, err
	}
	t := f.topic(post.Forum, post.Topic)
	if t == nil {
		return provider.Receipt{}, provider.ErrNoSuchForum
	}
	m := provider.MessageEntry{
		RemoteID:  f.id(),
		CommentID: post.ReplyTo,
		Author:    f.Username,
		Body:      post.Body,
		Date:      f.tick(),
	}
	m.RootID = m.RemoteID
	if parent := f.message(post.Forum, post.Topic, post.ReplyTo); parent != nil {
		m.RootID = parent.RootID
	}
	t.messages = append(t.messages, m)
	return provider.Receipt{Token: post.Token, RemoteID: m.RemoteID}, nil
}

func (f *Fake) MarkRead(ctx context.Context, changes []provider.ReadChange) ([]provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "MarkRead"); err != nil {
		return nil, err
	}
	receipts := make([]provider.Receipt, 0, len(changes))
	for _, c := range changes {
		m := f.message(c.Forum, c.Topic, c.RemoteID)
		if m == nil {
			return nil, provider.ErrNotFound
		}
		m.Unread = !c.Read
		receipts = append(receipts, provider.Receipt{Token: c.Token, RemoteID: c.RemoteID})
	}
	return receipts, nil
}

func (f *Fake) SetStar(ctx context.Context, forumName, topicName string, remoteID int, starred bool, token string) (provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "SetStar"); err != nil {
		return provider.Receipt{}, err
	}
	m := f.message(forumName, topicName, remoteID)
	if m == nil {
		return provider.Receipt{}, provider.ErrNotFound
	}
	m.Starred = starred
	return provider.Receipt{Token: token, RemoteID: remoteID}, nil
}

func (f *Fake) Withdraw(ctx context.Context, forumName, topicName string, remoteID int, token string) (provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "Withdraw"); err != nil {
		return provider.Receipt{}, err
	}
	m := f.message(forumName, topicName, remoteID)
	if m == nil {
		return provider.Receipt{}, provider.ErrNotFound
	}
	m.Body = ""
	m.Withdrawn = true
	return provider.Receipt{Token: token, RemoteID: remoteID}, nil
}

func (f *Fake) MarkReadRange(ctx context.Context, forumName, topicName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "MarkReadRange"); err != nil {
		return err
	}
	t := f.topic(forumName, topicName)
	if t == nil {
		return provider.ErrNoSuchForum
	}
	for i := range t.messages {
		t.messages[i].Unread = false
	}
	return nil
}

func (f *Fake) JoinForum(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "JoinForum"); err != nil {
		return err
	}
	fo := f.forum(name)
	if fo == nil {
		return provider.ErrNoSuchForum
	}
	fo.joined = true
	return nil
}

func (f *Fake) ResignForum(ctx context.Context, forumName, topicName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ResignForum"); err != nil {
		return err
	}
	fo := f.forum(forumName)
	if fo == nil {
		return provider.ErrNoSuchForum
	}
	if topicName == "" {
		fo.joined = false
		return nil
	}
	fo.topics = slices.DeleteFunc(fo.topics, func(t *topic) bool {
		return strings.EqualFold(t.entry.Name, topicName)
	})
	return nil
}

func (f *Fake) boxed(ctx context.Context, op string, outbox bool, since time.Time) ([]provider.ConversationEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, op); err != nil {
		return nil, err
	}
	var out []provider.ConversationEntry
	for _, c := range f.convs {
		if c.outbox != outbox || (!since.IsZero() && !c.entry.Date.After(since)) {
			continue
		}
		e := c.entry
		e.Messages = slices.Clone(e.Messages)
		out = append(out, e)
	}
	return out, nil
}

func (f *Fake) Inbox(ctx context.Context, since time.Time) ([]provider.ConversationEntry, error) {
	return f.boxed(ctx, "Inbox", false, since)
}

func (f *Fake) Outbox(ctx context.Context, since time.Time) ([]provider.ConversationEntry, error) {
	return f.boxed(ctx, "Outbox", true, since)
}

func (f *Fake) SendMail(ctx context.Context, recipient, subject, body string) (provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "SendMail"); err != nil {
		return provider.Receipt{}, err
	}
	if strings.TrimSpace(recipient) == "" {
		return provider.Receipt{}, provider.ErrNoSuchUser
	}
	date := f.tick()
	c := &conversation{
		outbox: true,
		entry: provider.ConversationEntry{
			RemoteID: f.id(),
			Author:   recipient,
			Subject:  subject,
			Date:     date,
			Messages: []provider.MailEntry{{RemoteID: f.id(), Author: f.Username, Body: body, Date: date}},
		},
	}
	f.convs = append(f.convs, c)
	return provider.Receipt{RemoteID: c.entry.RemoteID, Secondary: c.entry.Messages[0].RemoteID}, nil
}

func (f *Fake) ReplyMail(ctx context.Context, conversationRemoteID int, body string) (provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ReplyMail"); err != nil {
		return provider.Receipt{}, err
	}
	c := f.conversation(conversationRemoteID)
	if c == nil {
		return provider.Receipt{}, provider.ErrNotFound
	}
	m := provider.MailEntry{RemoteID: f.id(), Author: f.Username, Body: body, Date: f.tick()}
	c.entry.Messages = append(c.entry.Messages, m)
	c.entry.Date = m.Date
	return provider.Receipt{RemoteID: m.RemoteID}, nil
}

func (f *Fake) MarkConversationRead(ctx context.Context, conversationRemoteID int, read bool, token string) (provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "MarkConversationRead"); err != nil {
		return provider.Receipt{}, err
	}
	c := f.conversation(conversationRemoteID)
	if c == nil {
		return provider.Receipt{}, provider.ErrNotFound
	}
	c.entry.Unread = !read
	return provider.Receipt{Token: token, RemoteID: conversationRemoteID}, nil
}

func (f *Fake) DeleteConversation(ctx context.Context, conversationRemoteID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "DeleteConversation"); err != nil {
		return err
	}
	n := len(f.convs)
	f.convs = slices.DeleteFunc(f.convs, func(c *conversation) bool {
		return c.entry.RemoteID == conversationRemoteID
	})
	if len(f.convs) == n {
		return provider.ErrNotFound
	}
	return nil
}

func (f *Fake) ListDirectory(ctx context.Context) ([]provider.DirForumEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ListDirectory"); err != nil {
		return nil, err
	}
	out := make([]provider.DirForumEntry, 0, len(f.directory))
	for _, e := range f.directory {
		e.Moderators = nil
		e.Participants = nil
		out = append(out, e)
	}
	return out, nil
}

func (f *Fake) ForumDetails(ctx context.Context, name string) (*provider.DirForumEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ForumDetails"); err != nil {
		return nil, err
	}
	e := f.dirForum(name)
	if e == nil {
		return nil, provider.ErrNoSuchForum
	}
	out := *e
	out.Moderators = slices.Clone(e.Moderators)
	out.Participants = slices.Clone(e.Participants)
	return &out, nil
}

func (f *Fake) UpdateForumMembers(ctx context.Context, name string, change provider.MemberChange) (provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "UpdateForumMembers"); err != nil {
		return provider.Receipt{}, err
	}
	e := f.dirForum(name)
	if e == nil {
		return provider.Receipt{}, provider.ErrNoSuchForum
	}
	e.Moderators = applyDelta(e.Moderators, change.AddedMods, change.RemovedMods)
	e.Participants = applyDelta(e.Participants, change.AddedParts, change.RemovedParts)
	return provider.Receipt{Token: change.Token}, nil
}

func applyDelta(list, added, removed []string) []string {
	out := slices.DeleteFunc(slices.Clone(list), func(s string) bool {
		return slices.Contains(removed, s)
	})
	for _, a := range added {
		if !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

func (f *Fake) Profile(ctx context.Context, username string) (*provider.ProfileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "Profile"); err != nil {
		return nil, err
	}
	p, ok := f.profiles[strings.ToLower(username)]
	if !ok {
		return nil, provider.ErrNoSuchUser
	}
	out := *p
	return &out, nil
}

// UpdateProfile changes the profile of the fake's own user.
func (f *Fake) UpdateProfile(ctx context.Context, update provider.ProfileUpdate) (provider.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "UpdateProfile"); err != nil {
		return provider.Receipt{}, err
	}
	p, ok := f.profiles[strings.ToLower(f.Username)]
	if !ok {
		return provider.Receipt{}, provider.ErrNoSuchUser
	}
	p.FullName, p.Email, p.Location, p.Sex, p.Flags = update.FullName, update.Email, update.Location, update.Sex, update.Flags
	return provider.Receipt{Token: update.Token}, nil
}

func (f *Fake) Who(ctx context.Context) ([]provider.WhoEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "Who"); err != nil {
		return nil, err
	}
	return slices.Clone(f.who), nil
}

func (f *Fake) InterestingThreads(ctx context.Context) ([]provider.ThreadEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "InterestingThreads"); err != nil {
		return nil, err
	}
	return slices.Clone(f.threads), nil
}
