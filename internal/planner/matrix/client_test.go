package matrix_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/La100/vibeplanner-sub001/internal/planner/matrix"
)

type recorded struct {
	path string
	auth string
	body map[string]any
}

func newHomeserver(t *testing.T) (*httptest.Server, func() []recorded) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := map[string]any{}
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		reqs = append(reqs, recorded{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "/send/m.room.message/"):
			_, _ = io.WriteString(w, `{"event_id":"$evt1"}`)
		case strings.Contains(r.URL.Path, "/join/"):
			_, _ = io.WriteString(w, `{"room_id":"!ops:example.org"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"errcode":"M_UNRECOGNIZED","error":"unknown"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func TestSendNotice(t *testing.T) {
	srv, requests := newHomeserver(t)
	c, err := matrix.New(&matrix.Config{Homeserver: srv.URL, UserID: "@planner:example.org", AccessToken: "tok"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := c.SendNotice("!ops:example.org", "✅ action.confirmed"); err != nil {
		t.Fatalf("SendNotice: %v", err)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("requests: got %d, want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].path, "!ops:example.org") {
		t.Errorf("path %q does not name the room", reqs[0].path)
	}
	if reqs[0].auth != "Bearer tok" {
		t.Errorf("auth: got %q", reqs[0].auth)
	}
	if reqs[0].body["msgtype"] != "m.notice" || reqs[0].body["body"] != "✅ action.confirmed" {
		t.Errorf("body: got %v", reqs[0].body)
	}
}

func TestJoinRoom(t *testing.T) {
	srv, requests := newHomeserver(t)
	c, err := matrix.New(&matrix.Config{Homeserver: srv.URL, UserID: "@planner:example.org", AccessToken: "tok"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.JoinRoom(t.Context(), "!ops:example.org"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if got := requests(); len(got) != 1 || !strings.Contains(got[0].path, "/join/") {
		t.Errorf("requests: got %+v", got)
	}
	if c.GetUserID() != "@planner:example.org" {
		t.Errorf("user id: got %q", c.GetUserID())
	}
}

func TestSendNoticeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"errcode":"M_FORBIDDEN","error":"not in room"}`)
	}))
	defer srv.Close()

	c, err := matrix.New(&matrix.Config{Homeserver: srv.URL, UserID: "@planner:example.org", AccessToken: "tok"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.SendNotice("!ops:example.org", "hi"); err == nil {
		t.Error("expected an error")
	}
}

func TestNewRequiresHomeserver(t *testing.T) {
	if _, err := matrix.New(&matrix.Config{}); err == nil {
		t.Error("expected an error")
	}
}
