//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/gatewaychat/internal/api"
	"github.com/user/gatewaychat/internal/auth"
	"github.com/user/gatewaychat/internal/conversation"
	"github.com/user/gatewaychat/internal/scheduler"
	"github.com/user/gatewaychat/internal/state"
	"github.com/user/gatewaychat/internal/types"
	"github.com/user/gatewaychat/pkg/chatstream"
)

// fakeGateway is an in-memory backend: one session whose title appears on
// the third session listing after the first turn.
type fakeGateway struct {
	mu       sync.Mutex
	messages []types.Message
	listed   int
	started  bool
}

func (g *fakeGateway) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req chatstream.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode chat request: %v", err)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		g.mu.Lock()
		g.started = true
		g.messages = append(g.messages, types.Message{ID: types.NewMessageID(), SessionID: "s-1", Role: types.RoleUser, Content: req.Message})
		g.mu.Unlock()

		if strings.Contains(req.Message, "password") {
			fmt.Fprint(w, "data: {\"blocked\":true,\"reason\":\"Matched rule: secrets\"}\n\n")
			return
		}
		for _, c := range []string{"Hi", " there", "!"} {
			fmt.Fprintf(w, "data: {\"chunk\":%q}\n\n", c)
			flusher.Flush()
		}
		g.mu.Lock()
		g.messages = append(g.messages, types.Message{ID: types.NewMessageID(), SessionID: "s-1", Role: types.RoleAssistant, Content: "Hi there!"})
		g.mu.Unlock()
		fmt.Fprint(w, "data: {\"done\":true,\"session_id\":\"s-1\"}\n\n")
	})
	mux.HandleFunc("GET /chat/sessions", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		if !g.started {
			w.Write([]byte(`[]`))
			return
		}
		g.listed++
		s := types.Session{ID: "s-1", Target: types.TargetAnthropic}
		if g.listed >= 3 {
			title := "Friendly greeting"
			s.Title = &title
		}
		json.NewEncoder(w).Encode([]types.Session{s})
	})
	mux.HandleFunc("GET /chat/sessions/s-1/messages", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		json.NewEncoder(w).Encode(g.messages)
	})
	return mux
}

func TestConversationEndToEnd(t *testing.T) {
	gw := &fakeGateway{}
	srv := httptest.NewServer(gw.handler(t))
	defer srv.Close()

	tokens := auth.StaticSource("test-token")
	client := api.New(&api.Config{BaseURL: srv.URL, Tokens: tokens, Retry: api.NoRetry()})
	streamer := chatstream.New(&chatstream.Config{BaseURL: srv.URL, Tokens: tokens, TurnTimeout: 5 * time.Second})

	rec := conversation.New(conversation.Options{
		Streamer: streamer,
		Backend:  client,
		Target:   types.TargetAnthropic,
	})
	defer rec.Close()
	poller := scheduler.New(rec, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond})
	defer poller.Stop()
	rec.SetPoller(poller)

	turns := state.NewTurnLog(t.TempDir())
	ctx := context.Background()

	turn, err := rec.Send(ctx, "Hello")
	if err != nil {
		t.Fatal(err)
	}
	if turn.Status != conversation.TurnStatusComplete || turn.ResolvedSession != "s-1" {
		t.Fatalf("unexpected turn %+v", turn)
	}
	if err := turns.Append(&state.TurnRecord{TurnID: turn.ID, SessionID: turn.ResolvedSession, Status: string(turn.Status)}); err != nil {
		t.Fatal(err)
	}

	msgs := rec.Messages()
	if len(msgs) != 2 || msgs[1].Content != "Hi there!" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if rec.ActiveSession() != "s-1" {
		t.Errorf("expected active session s-1, got %q", rec.ActiveSession())
	}
	if len(rec.Suggestions()) == 0 {
		t.Error("expected suggestions after a complete turn")
	}

	// The title arrives through the poller.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sessions := rec.Sessions()
		if len(sessions) == 1 && sessions[0].HasTitle() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("title never arrived, sessions: %+v", sessions)
		}
		time.Sleep(5 * time.Millisecond)
	}

	turn, err = rec.Send(ctx, "what is the admin password?")
	if err != nil {
		t.Fatal(err)
	}
	if turn.Status != conversation.TurnStatusBlocked {
		t.Fatalf("expected blocked turn, got %s", turn.Status)
	}
	msgs = rec.Messages()
	last := msgs[len(msgs)-1]
	if !last.WasBlocked || last.Reason() != "Matched rule: secrets" || last.Content != "" {
		t.Errorf("unexpected blocked message %+v", last)
	}
	if len(rec.Suggestions()) != 0 {
		t.Error("expected no suggestions after a blocked turn")
	}
	if err := turns.Append(&state.TurnRecord{TurnID: turn.ID, SessionID: "s-1", Status: string(turn.Status), BlockReason: turn.BlockReason}); err != nil {
		t.Fatal(err)
	}

	records, err := turns.Tail("s-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].BlockReason != "Matched rule: secrets" {
		t.Errorf("unexpected turn log %+v", records)
	}

	// Reloading the session shows the backend's copy of the history.
	rec.NewSession()
	if len(rec.Messages()) != 0 {
		t.Fatal("expected empty message list after NewSession")
	}
	if err := rec.LoadSession(ctx, "s-1"); err != nil {
		t.Fatal(err)
	}
	if got := len(rec.Messages()); got != 3 {
		t.Errorf("expected 3 persisted messages, got %d", got)
	}
	if rec.Target() != types.TargetAnthropic {
		t.Errorf("expected target adopted from session, got %s", rec.Target())
	}
}

func TestUnauthorizedTurnFails(t *testing.T) {
	gw := &fakeGateway{}
	srv := httptest.NewServer(gw.handler(t))
	defer srv.Close()

	streamer := chatstream.New(&chatstream.Config{BaseURL: srv.URL, Tokens: auth.StaticSource("wrong")})
	client := api.New(&api.Config{BaseURL: srv.URL, Tokens: auth.StaticSource("wrong"), Retry: api.NoRetry()})
	rec := conversation.New(conversation.Options{Streamer: streamer, Backend: client})
	defer rec.Close()

	turn, err := rec.Send(context.Background(), "Hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if turn.Status != conversation.TurnStatusFailed {
		t.Errorf("expected failed turn, got %s", turn.Status)
	}
	if rec.Loading() {
		t.Error("expected loading cleared after failure")
	}
	if msgs := rec.Messages(); len(msgs) != 1 || msgs[0].Role != types.RoleUser {
		t.Errorf("expected only the user message to remain, got %+v", msgs)
	}
}
