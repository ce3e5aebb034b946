package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lu-zhengda/termcix/internal/app"
	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/folders"
	"github.com/lu-zhengda/termcix/internal/provider"
)

// printJSON encodes v as indented JSON to stdout.
func printJSON(v any) error {
	return fprintJSON(os.Stdout, v)
}

// fprintJSON encodes v as indented JSON to w.
func fprintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// jsonAction reports the outcome of a command that changes something.
type jsonAction struct {
	OK     bool   `json:"ok"`
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
}

type jsonStatus struct {
	State              string `json:"state"`
	Unread             int    `json:"unread"`
	UnreadPriority     int    `json:"unread_priority"`
	MailUnread         int    `json:"mail_unread"`
	MailUnreadPriority int    `json:"mail_unread_priority"`
	LastSync           string `json:"last_sync,omitempty"`
}

func toJSONStatus(st app.Status) jsonStatus {
	out := jsonStatus{
		State:              st.State.String(),
		Unread:             st.Unread,
		UnreadPriority:     st.UnreadPriority,
		MailUnread:         st.MailUnread,
		MailUnreadPriority: st.MailUnreadPriority,
	}
	if !st.LastSync.IsZero() {
		out.LastSync = st.LastSync.Format(time.RFC3339)
	}
	return out
}

type jsonFolder struct {
	ID             int64    `json:"id"`
	Path           string   `json:"path"`
	Title          string   `json:"title"`
	Unread         int      `json:"unread"`
	UnreadPriority int      `json:"unread_priority"`
	Flags          []string `json:"flags,omitempty"`
	Pending        bool     `json:"pending,omitempty"`
}

var folderFlagNames = []struct {
	flag domain.FolderFlags
	name string
}{
	{domain.FolderReadOnly, "read-only"},
	{domain.FolderResigned, "resigned"},
	{domain.FolderCannotResign, "cannot-resign"},
	{domain.FolderOwnerCommentsOnly, "owner-comments-only"},
	{domain.FolderJoinFailed, "join-failed"},
	{domain.FolderRecent, "recent"},
}

func folderFlags(f domain.Folder) []string {
	var out []string
	for _, fl := range folderFlagNames {
		if f.Has(fl.flag) {
			out = append(out, fl.name)
		}
	}
	return out
}

func toJSONFolder(f domain.Folder, path string) jsonFolder {
	return jsonFolder{
		ID:             f.ID,
		Path:           path,
		Title:          f.Title(),
		Unread:         f.Unread,
		UnreadPriority: f.UnreadPriority,
		Flags:          folderFlags(f),
		Pending:        f.HasPending(),
	}
}

type jsonMessage struct {
	ID        int64  `json:"id"`
	RemoteID  int    `json:"remote_id,omitempty"`
	ReplyTo   int    `json:"reply_to,omitempty"`
	Level     int    `json:"level"`
	Author    string `json:"author"`
	Date      string `json:"date"`
	Subject   string `json:"subject"`
	Body      string `json:"body,omitempty"`
	Unread    bool   `json:"unread"`
	Priority  bool   `json:"priority,omitempty"`
	Starred   bool   `json:"starred,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	Withdrawn bool   `json:"withdrawn,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

func toJSONMessage(m domain.Message, level int, withBody bool) jsonMessage {
	out := jsonMessage{
		ID:        m.ID,
		RemoteID:  m.RemoteID,
		ReplyTo:   m.CommentID,
		Level:     level,
		Author:    m.Author,
		Date:      m.Date.Format(time.RFC3339),
		Subject:   m.Subject(),
		Unread:    m.Unread,
		Priority:  m.Priority,
		Starred:   m.Starred,
		Ignored:   m.Ignored,
		Withdrawn: m.Withdrawn,
		Pending:   m.HasPending(),
	}
	if withBody {
		out.Body = m.Body
	}
	return out
}

func toJSONThread(lines []folders.Line, withBody bool) []jsonMessage {
	out := make([]jsonMessage, 0, len(lines))
	for _, l := range lines {
		out = append(out, toJSONMessage(l.Message, l.Level, withBody))
	}
	return out
}

type jsonConversation struct {
	ID       int64      `json:"id"`
	RemoteID int        `json:"remote_id,omitempty"`
	With     string     `json:"with"`
	Subject  string     `json:"subject"`
	Date     string     `json:"date"`
	Unread   bool       `json:"unread"`
	Priority bool       `json:"priority,omitempty"`
	Error    bool       `json:"error,omitempty"`
	Messages []jsonMail `json:"messages,omitempty"`
}

type jsonMail struct {
	ID      int64  `json:"id"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Body    string `json:"body"`
	Pending bool   `json:"pending,omitempty"`
}

func toJSONConversation(c domain.Conversation, msgs []domain.MailMessage) jsonConversation {
	out := jsonConversation{
		ID:       c.ID,
		RemoteID: c.RemoteID,
		With:     c.Author,
		Subject:  c.Subject,
		Date:     c.Date.Format(time.RFC3339),
		Unread:   c.Unread,
		Priority: c.Priority,
		Error:    c.LastError,
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, jsonMail{
			ID:      m.ID,
			Author:  m.Author,
			Date:    m.Date.Format(time.RFC3339),
			Body:    m.Body,
			Pending: m.SendPending,
		})
	}
	return out
}

type jsonDirForum struct {
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Category     string   `json:"category,omitempty"`
	SubCategory  string   `json:"sub_category,omitempty"`
	Closed       bool     `json:"closed"`
	Recent       int      `json:"recent"`
	Moderators   []string `json:"moderators,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Pending      bool     `json:"pending,omitempty"`
}

func toJSONDirForums(forums []domain.DirForum) []jsonDirForum {
	out := make([]jsonDirForum, 0, len(forums))
	for _, f := range forums {
		out = append(out, jsonDirForum{
			Name:         f.Name,
			Title:        f.Title,
			Description:  f.Desc,
			Category:     f.Cat,
			SubCategory:  f.Sub,
			Closed:       f.IsClosed(),
			Recent:       f.Recent,
			Moderators:   f.Moderators,
			Participants: f.Participants,
			Pending:      f.DetailsPending,
		})
	}
	return out
}

type jsonRule struct {
	Index     int         `json:"index"`
	Active    bool        `json:"active"`
	Title     string      `json:"title"`
	Actions   []string    `json:"actions"`
	Predicate domain.Expr `json:"predicate"`
}

func toJSONRules(rules []domain.Rule) []jsonRule {
	out := make([]jsonRule, 0, len(rules))
	for i, r := range rules {
		out = append(out, jsonRule{
			Index:     i,
			Active:    r.Active,
			Title:     r.Title,
			Actions:   actionNames(r.Action),
			Predicate: r.Predicate,
		})
	}
	return out
}

type jsonProfile struct {
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Location string `json:"location,omitempty"`
	Sex      string `json:"sex,omitempty"`
	About    string `json:"about,omitempty"`
	FirstOn  string `json:"first_on,omitempty"`
	LastOn   string `json:"last_on,omitempty"`
	LastPost string `json:"last_post,omitempty"`
	Pending  bool   `json:"pending,omitempty"`
}

// optionalRFC3339 formats t, or returns "" for the zero time.
func optionalRFC3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func toJSONProfile(p domain.Profile) jsonProfile {
	return jsonProfile{
		Username: p.Username,
		FullName: p.FullName,
		Email:    p.Email,
		Location: p.Location,
		Sex:      p.Sex,
		About:    p.About,
		FirstOn:  optionalRFC3339(p.FirstOn),
		LastOn:   optionalRFC3339(p.LastOn),
		LastPost: optionalRFC3339(p.LastPost),
		Pending:  p.Pending,
	}
}

type jsonWho struct {
	Username string `json:"username"`
	LastOn   string `json:"last_on,omitempty"`
}

func toJSONWho(who []provider.WhoEntry) []jsonWho {
	out := make([]jsonWho, 0, len(who))
	for _, e := range who {
		out = append(out, jsonWho{Username: e.Username, LastOn: optionalRFC3339(e.LastOn)})
	}
	return out
}

type jsonActiveThread struct {
	ID       int64  `json:"id,omitempty"`
	Forum    string `json:"forum"`
	Topic    string `json:"topic"`
	RemoteID int    `json:"remote_id"`
	Author   string `json:"author"`
	Date     string `json:"date,omitempty"`
	Subject  string `json:"subject"`
}

func toJSONActiveThreads(threads []folders.ActiveThread) []jsonActiveThread {
	out := make([]jsonActiveThread, 0, len(threads))
	for _, t := range threads {
		m := domain.Message{Body: t.Body}
		out = append(out, jsonActiveThread{
			ID:       t.MessageID,
			Forum:    t.Forum,
			Topic:    t.Topic,
			RemoteID: t.RemoteID,
			Author:   t.Author,
			Date:     optionalRFC3339(t.Date),
			Subject:  m.Subject(),
		})
	}
	return out
}
