package cix

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/store"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	gw, err := NewGateway(srv.URL+"/api", oauth2.StaticTokenSource(store.BasicToken("alice", "secret")))
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return New(gw)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestTopicMessages(t *testing.T) {
	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/forums/tech/general/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("since"); got != "2024-03-01T12:00:00Z" {
			t.Errorf("since = %q", got)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "secret" {
			t.Errorf("basic auth = %q, %q, %v", user, pass, ok)
		}
		writeJSON(t, w, []map[string]any{
			{"id": 501, "replyTo": 500, "rootId": 500, "author": "bob", "body": "hi", "date": since, "unread": true},
		})
	})

	got, err := p.TopicMessages(context.Background(), "tech", "general", since)
	if err != nil {
		t.Fatalf("TopicMessages() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("TopicMessages() returned %d messages, want 1", len(got))
	}
	m := got[0]
	if m.RemoteID != 501 || m.CommentID != 500 || m.RootID != 500 || !m.Unread || !m.Date.Equal(since) {
		t.Errorf("TopicMessages()[0] = %+v", m)
	}
}

func TestPostMessage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/forums/tech/general/post" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Body    string `json:"body"`
			ReplyTo int    `json:"replyTo"`
			Token   string `json:"token"`
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if body.Body != "Hello" || body.ReplyTo != 42 || body.Token != "tok" {
			t.Errorf("payload = %+v", body)
		}
		writeJSON(t, w, map[string]any{"token": body.Token, "id": 900})
	})

	r, err := p.PostMessage(context.Background(), provider.Post{Forum: "tech", Topic: "general", Body: "Hello", ReplyTo: 42, Token: "tok"})
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	if r.Token != "tok" || r.RemoteID != 900 {
		t.Errorf("PostMessage() = %+v", r)
	}
}

func TestSendMailReceipt(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": 7, "secondary": 70})
	})
	r, err := p.SendMail(context.Background(), "bob", "Lunch", "Noon?")
	if err != nil {
		t.Fatalf("SendMail() error = %v", err)
	}
	if r.RemoteID != 7 || r.Secondary != 70 {
		t.Errorf("SendMail() = %+v", r)
	}
}

func TestProfileMapping(t *testing.T) {
	lastOn := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/user/bob/profile" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(t, w, map[string]any{"firstName": "Bob", "lastName": "Jones", "location": "York", "lastOn": lastOn})
	})

	got, err := p.Profile(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if got.Username != "bob" || got.FullName != "Bob Jones" || got.Location != "York" || !got.LastOn.Equal(lastOn) {
		t.Errorf("Profile() = %+v", got)
	}
}

func TestUpdateProfileSplitsName(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/user/profile" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			First string `json:"firstName"`
			Last  string `json:"lastName"`
			Token string `json:"token"`
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if body.First != "Mary" || body.Last != "Ann Smith" {
			t.Errorf("payload = %+v", body)
		}
		writeJSON(t, w, map[string]any{"token": body.Token})
	})

	r, err := p.UpdateProfile(context.Background(), provider.ProfileUpdate{FullName: " Mary Ann Smith ", Token: "tok"})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if r.Token != "tok" {
		t.Errorf("UpdateProfile() = %+v", r)
	}
}

func TestNoSuchUser(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(t, w, map[string]any{"code": "NoSuchUser", "message": "unknown user"})
	})
	_, err := p.Profile(context.Background(), "nobody")
	if !errors.Is(err, provider.ErrNoSuchUser) {
		t.Errorf("Profile() error = %v, want ErrNoSuchUser", err)
	}
}

func TestInboxMapping(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mail/inbox" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Has("since") {
			t.Errorf("zero since must not be sent")
		}
		writeJSON(t, w, []map[string]any{{
			"id": 3, "author": "bob", "subject": "Q", "unread": true,
			"messages": []map[string]any{{"id": 30, "author": "bob", "body": "?"}},
		}})
	})
	got, err := p.Inbox(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Inbox() error = %v", err)
	}
	if len(got) != 1 || got[0].RemoteID != 3 || len(got[0].Messages) != 1 || got[0].Messages[0].RemoteID != 30 {
		t.Errorf("Inbox() = %+v", got)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{name: "server error", status: http.StatusInternalServerError, want: provider.ErrServer},
		{name: "rate limited", status: http.StatusTooManyRequests, want: provider.ErrBusy},
		{name: "unavailable", status: http.StatusServiceUnavailable, want: provider.ErrBusy},
		{name: "not found", status: http.StatusNotFound, want: provider.ErrNotFound},
		{name: "no such forum", status: http.StatusNotFound, code: "NoSuchForum", want: provider.ErrNoSuchForum},
		{name: "no such user", status: http.StatusBadRequest, code: "NoSuchUser", want: provider.ErrNoSuchUser},
		{name: "join failed", status: http.StatusConflict, code: "JoinFailed", want: provider.ErrJoinFailed},
		{name: "resign failed", status: http.StatusConflict, code: "ResignFailed", want: provider.ErrResignFailed},
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrUnauthorized},
		{name: "bad request", status: http.StatusBadRequest, want: provider.ErrServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if tt.code != "" {
					writeJSON(t, w, map[string]string{"code": tt.code, "message": "nope"})
				}
			})
			err := p.JoinForum(context.Background(), "tech")
			if !errors.Is(err, tt.want) {
				t.Errorf("JoinForum() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMalformedResult(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{not json")
	})
	_, err := p.ListForums(context.Background())
	if !errors.Is(err, provider.ErrServer) {
		t.Errorf("ListForums() error = %v, want ErrServer", err)
	}
}

func TestUnreachableIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	gw, err := NewGateway(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	_, err = New(gw).ListDirectory(context.Background())
	if !errors.Is(err, provider.ErrOffline) {
		t.Errorf("ListDirectory() error = %v, want ErrOffline", err)
	}
	if !provider.IsRetryable(err) {
		t.Errorf("IsRetryable(%v) = false", err)
	}
}

func TestCancelledContext(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ListForums(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ListForums() error = %v, want context.Canceled", err)
	}
}
