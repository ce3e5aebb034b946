package cix

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bradenaw/juniper/xslices"

	"github.com/lu-zhengda/termcix/internal/provider"
)

// Provider implements provider.Provider over a Gateway.
type Provider struct {
	gw *Gateway
}

var _ provider.Provider = (*Provider)(nil)

func New(gw *Gateway) *Provider {
	return &Provider{gw: gw}
}

type wireForum struct {
	Name   string      `json:"name"`
	Title  string      `json:"title"`
	Flags  uint32      `json:"flags"`
	Topics []wireTopic `json:"topics"`
}

type wireTopic struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Flags  uint32 `json:"flags"`
	Unread int    `json:"unread"`
}

type wireMessage struct {
	ID        int       `json:"id"`
	ReplyTo   int       `json:"replyTo"`
	RootID    int       `json:"rootId"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Date      time.Time `json:"date"`
	Unread    bool      `json:"unread"`
	Priority  bool      `json:"priority"`
	Starred   bool      `json:"starred"`
	Withdrawn bool      `json:"withdrawn"`
}

type wireReceipt struct {
	Token     string `json:"token"`
	ID        int    `json:"id"`
	Secondary int    `json:"secondary"`
}

type wireConversation struct {
	ID       int        `json:"id"`
	Author   string     `json:"author"`
	Subject  string     `json:"subject"`
	Date     time.Time  `json:"date"`
	Unread   bool       `json:"unread"`
	Messages []wireMail `json:"messages"`
}

type wireMail struct {
	ID     int       `json:"id"`
	Author string    `json:"author"`
	Body   string    `json:"body"`
	Date   time.Time `json:"date"`
}

type wireDirForum struct {
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	Desc         string   `json:"description"`
	Type         string   `json:"type"`
	Cat          string   `json:"category"`
	Sub          string   `json:"subCategory"`
	Recent       int      `json:"recent"`
	Moderators   []string `json:"moderators"`
	Participants []string `json:"participants"`
}

type wireProfile struct {
	Username string    `json:"username"`
	First    string    `json:"firstName"`
	Last     string    `json:"lastName"`
	Email    string    `json:"email"`
	Location string    `json:"location"`
	Sex      string    `json:"sex"`
	About    string    `json:"about"`
	Flags    int       `json:"flags"`
	FirstOn  time.Time `json:"firstOn"`
	LastOn   time.Time `json:"lastOn"`
	LastPost time.Time `json:"lastPost"`
}

type wireWho struct {
	Name   string    `json:"name"`
	LastOn time.Time `json:"lastOn"`
}

type wireThread struct {
	Forum  string    `json:"forum"`
	Topic  string    `json:"topic"`
	RootID int       `json:"rootId"`
	Author string    `json:"author"`
	Body   string    `json:"body"`
	Date   time.Time `json:"date"`
}

func (r wireReceipt) receipt() provider.Receipt {
	return provider.Receipt{Token: r.Token, RemoteID: r.ID, Secondary: r.Secondary}
}

func (m wireMessage) entry() provider.MessageEntry {
	return provider.MessageEntry{
		RemoteID:  m.ID,
		CommentID: m.ReplyTo,
		RootID:    m.RootID,
		Author:    m.Author,
		Body:      m.Body,
		Date:      m.Date,
		Unread:    m.Unread,
		Priority:  m.Priority,
		Starred:   m.Starred,
		Withdrawn: m.Withdrawn,
	}
}

func (c wireConversation) entry() provider.ConversationEntry {
	return provider.ConversationEntry{
		RemoteID: c.ID,
		Author:   c.Author,
		Subject:  c.Subject,
		Date:     c.Date,
		Unread:   c.Unread,
		Messages: xslices.Map(c.Messages, func(m wireMail) provider.MailEntry {
			return provider.MailEntry{RemoteID: m.ID, Author: m.Author, Body: m.Body, Date: m.Date}
		}),
	}
}

func (f wireDirForum) entry() provider.DirForumEntry {
	return provider.DirForumEntry{
		Name:         f.Name,
		Title:        f.Title,
		Desc:         f.Desc,
		Type:         f.Type,
		Cat:          f.Cat,
		Sub:          f.Sub,
		Recent:       f.Recent,
		Moderators:   f.Moderators,
		Participants: f.Participants,
	}
}

func (p wireProfile) entry() provider.ProfileEntry {
	return provider.ProfileEntry{
		Username: p.Username,
		FullName: strings.TrimSpace(p.First + " " + p.Last),
		Email:    p.Email,
		Location: p.Location,
		Sex:      p.Sex,
		About:    p.About,
		Flags:    p.Flags,
		FirstOn:  p.FirstOn,
		LastOn:   p.LastOn,
		LastPost: p.LastPost,
	}
}

// splitName splits a full name into the first and last name fields the
// service stores. Everything after the first word is the last name.
func splitName(full string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(full), " ")
	return first, strings.TrimSpace(last)
}

func sinceQuery(since time.Time) url.Values {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	return q
}

func topicPath(forum, topic string, rest ...string) string {
	return path.Join(append([]string{"forums", forum, topic}, rest...)...)
}

func mailPath(id int, rest ...string) string {
	return path.Join(append([]string{"mail", strconv.Itoa(id)}, rest...)...)
}

func (p *Provider) ListForums(ctx context.Context) ([]provider.ForumEntry, error) {
	var out []wireForum
	if err := p.gw.Fetch(ctx, "user/forums", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list forums: %w", err)
	}
	return xslices.Map(out, func(f wireForum) provider.ForumEntry {
		return provider.ForumEntry{
			Name:  f.Name,
			Title: f.Title,
			Flags: f.Flags,
			Topics: xslices.Map(f.Topics, func(t wireTopic) provider.TopicEntry {
				return provider.TopicEntry{Name: t.Name, Title: t.Title, Flags: t.Flags, Unread: t.Unread}
			}),
		}
	}), nil
}

func (p *Provider) TopicMessages(ctx context.Context, forum, topic string, since time.Time) ([]provider.MessageEntry, error) {
	var out []wireMessage
	if err := p.gw.Fetch(ctx, topicPath(forum, topic, "messages"), sinceQuery(since), &out); err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", forum, topic, err)
	}
	return xslices.Map(out, wireMessage.entry), nil
}

func (p *Provider) PostMessage(ctx context.Context, post provider.Post) (provider.Receipt, error) {
	payload := struct {
		Body    string `json:"body"`
		ReplyTo int    `json:"replyTo,omitempty"`
		Token   string `json:"token"`
	}{post.Body, post.ReplyTo, post.Token}
	var r wireReceipt
	if err := p.gw.Submit(ctx, topicPath(post.Forum, post.Topic, "post"), payload, &r); err != nil {
		return provider.Receipt{}, fmt.Errorf("failed to post to %s/%s: %w", post.Forum, post.Topic, err)
	}
	return r.receipt(), nil
}

func (p *Provider) MarkRead(ctx context.Context, changes []provider.ReadChange) ([]provider.Receipt, error) {
	type change struct {
		Forum string `json:"forum"`
		Topic string `json:"topic"`
		ID    int    `json:"id"`
		Read  bool   `json:"read"`
		Token string `json:"token"`
	}
	payload := struct {
		Changes []change `json:"changes"`
	}{xslices.Map(changes, func(c provider.ReadChange) change {
		return change{c.Forum, c.Topic, c.RemoteID, c.Read, c.Token}
	})}
	var out []wireReceipt
	if err := p.gw.Submit(ctx, "messages/read", payload, &out); err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return xslices.Map(out, wireReceipt.receipt), nil
}

func (p *Provider) SetStar(ctx context.Context, forum, topic string, remoteID int, starred bool, token string) (provider.Receipt, error) {
	payload := struct {
		Starred bool   `json:"starred"`
		Token   string `json:"token"`
	}{starred, token}
	var r wireReceipt
	if err := p.gw.Submit(ctx, topicPath(forum, topic, strconv.Itoa(remoteID), "star"), payload, &r); err != nil {
		return provider.Receipt{}, fmt.Errorf("failed to star %s/%s:%d: %w", forum, topic, remoteID, err)
	}
	return r.receipt(), nil
}

func (p *Provider) Withdraw(ctx context.Context, forum, topic string, remoteID int, token string) (provider.Receipt, error) {
	payload := struct {
		Token string `json:"token"`
	}{token}
	var r wireReceipt
	if err := p.gw.Submit(ctx, topicPath(forum, topic, strconv.Itoa(remoteID), "withdraw"), payload, &r); err != nil {
		return provider.Receipt{}, fmt.Errorf("failed to withdraw %s/%s:%d: %w", forum, topic, remoteID, err)
	}
	return r.receipt(), nil
}

func (p *Provider) MarkReadRange(ctx context.Context, forum, topic string) error {
	if err := p.gw.Submit(ctx, topicPath(forum, topic, "markread"), nil, nil); err != nil {
		return fmt.Errorf("failed to mark %s/%s read: %w", forum, topic, err)
	}
	return nil
}

func (p *Provider) JoinForum(ctx context.Context, forum string) error {
	if err := p.gw.Submit(ctx, path.Join("forums", forum, "join"), nil, nil); err != nil {
		return fmt.Errorf("failed to join %s: %w", forum, err)
	}
	return nil
}

func (p *Provider) ResignForum(ctx context.Context, forum, topic string) error {
	payload := struct {
		Topic string `json:"topic,omitempty"`
	}{topic}
	if err := p.gw.Submit(ctx, path.Join("forums", forum, "resign"), payload, nil); err != nil {
		return fmt.Errorf("failed to resign %s: %w", forum, err)
	}
	return nil
}

func (p *Provider) mailbox(ctx context.Context, box string, since time.Time) ([]provider.ConversationEntry, error) {
	var out []wireConversation
	if err := p.gw.Fetch(ctx, path.Join("mail", box), sinceQuery(since), &out); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", box, err)
	}
	return xslices.Map(out, wireConversation.entry), nil
}

func (p *Provider) Inbox(ctx context.Context, since time.Time) ([]provider.ConversationEntry, error) {
	return p.mailbox(ctx, "inbox", since)
}

func (p *Provider) Outbox(ctx context.Context, since time.Time) ([]provider.ConversationEntry, error) {
	return p.mailbox(ctx, "outbox", since)
}

func (p *Provider) SendMail(ctx context.Context, recipient, subject, body string) (provider.Receipt, error) {
	payload := struct {
		Recipient string `json:"recipient"`
		Subject   string `json:"subject"`
		Body      string `json:"body"`
	}{recipient, subject, body}
	var r wireReceipt
	if err := p.gw.Submit(ctx, "mail/send", payload, &r); err != nil {
		return provider.Receipt{}, fmt.Errorf("failed to send mail to %s: %w", recipient, err)
	}
	return r.receipt(), nil
}

func (p *Provider) ReplyMail(ctx context.Context, conversationRemoteID int, body string) (provider.Receipt, error) {
	payload := struct {
		Body string `json:"body"`
	}{body}
	var r wireReceipt
	if err := p.gw.Submit(ctx, mailPath(conversationRemoteID, "reply"), payload, &r); err != nil {
		return provider.Receipt{}, fmt.Errorf("failed to reply to conversation %d: %w", conversationRemoteID, err)
	}
	return r.receipt(), nil
}

func (p *Provider) MarkConversationRead(ctx context.Context, conversationRemoteID int, read bool, token string) (provider.Receipt, error) {
	payload := struct {
		Read  bool   `json:"read"`
		Token string `json:"token"`
	}{read, token}
	var r wireReceipt
	if err := p.gw.Submit(ctx, mailPath(conversationRemoteID, "read"), payload, &r); err != nil {
		return provider.Receipt{}, fmt.Errorf("failed to mark conversation %d read: %w", conversationRemoteID, err)
	}
	return r.receipt(), nil
}

func (p *Provider) DeleteConversation(ctx context.Context, conversationRemoteID int) error {
	if err := p.gw.Submit(ctx, mailPath(conversationRemoteID, "delete"), nil, nil); err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", conversationRemoteID, err)
	}
	return nil
}

func (p *Provider) ListDirectory(ctx context.Context) ([]provider.DirForumEntry, error) {
	var out []wireDirForum
	if err := p.gw.Fetch(ctx, "directory", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	return xslices.Map(out, wireDirForum.entry), nil
}

func (p *Provider) ForumDetails(ctx context.Context, forum string) (*provider.DirForumEntry, error) {
	var out wireDirForum
	if err := p.gw.Fetch(ctx, path.Join("directory", forum), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch details of %s: %w", forum, err)
	}
	e := out.entry()
	return &e, nil
}

func (p *Provider) UpdateForumMembers(ctx context.Context, forum string, change provider.MemberChange) (provider.Receipt, error) {
	payload := struct {
		AddedMods    []string `json:"addModerators,omitempty"`
		RemovedMods  []string `json:"removeModerators,omitempty"`
		AddedParts   []string `json:"addParticipants,omitempty"`
		RemovedParts []string `json:"removeParticipants,omitempty"`
		Token        string   `json:"token"`
	}{change.AddedMods, change.RemovedMods, change.AddedParts, change.RemovedParts, change.Token}
	var r wireReceipt
	if err := p.gw.Submit(ctx, path.Join("directory", forum, "members"), payload, &r); err != nil {
		return provider.Receipt{}, fmt.Errorf("failed to update members of %s: %w", forum, err)
	}
	return r.receipt(), nil
}

func (p *Provider) Profile(ctx context.Context, username string) (*provider.ProfileEntry, error) {
	var out wireProfile
	if err := p.gw.Fetch(ctx, path.Join("user", username, "profile"), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch profile of %s: %w", username, err)
	}
	if out.Username == "" {
		out.Username = username
	}
	e := out.entry()
	return &e, nil
}

func (p *Provider) UpdateProfile(ctx context.Context, update provider.ProfileUpdate) (provider.Receipt, error) {
	first, last := splitName(update.FullName)
	payload := struct {
		First    string `json:"firstName"`
		Last     string `json:"lastName"`
		Email    string `json:"email"`
		Location string `json:"location"`
		Sex      string `json:"sex"`
		Flags    int    `json:"flags"`
		Token    string `json:"token"`
	}{first, last, update.Email, update.Location, update.Sex, update.Flags, update.Token}
	var r wireReceipt
	if err := p.gw.Submit(ctx, "user/profile", payload, &r); err != nil {
		return provider.Receipt{}, fmt.Errorf("failed to update profile: %w", err)
	}
	return r.receipt(), nil
}

func (p *Provider) Who(ctx context.Context) ([]provider.WhoEntry, error) {
	var out []wireWho
	if err := p.gw.Fetch(ctx, "user/who", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	return xslices.Map(out, func(w wireWho) provider.WhoEntry {
		return provider.WhoEntry{Username: w.Name, LastOn: w.LastOn}
	}), nil
}

func (p *Provider) InterestingThreads(ctx context.Context) ([]provider.ThreadEntry, error) {
	var out []wireThread
	if err := p.gw.Fetch(ctx, "forums/interesting", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list active threads: %w", err)
	}
	return xslices.Map(out, func(t wireThread) provider.ThreadEntry {
		return provider.ThreadEntry{
			Forum:    t.Forum,
			Topic:    t.Topic,
			RemoteID: t.RootID,
			Author:   t.Author,
			Body:     t.Body,
			Date:     t.Date,
		}
	}), nil
}
