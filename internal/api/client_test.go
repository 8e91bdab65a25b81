package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/user/gatewaychat/internal/auth"
	"github.com/user/gatewaychat/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(&Config{
		BaseURL: server.URL + "/",
		Tokens:  auth.StaticSource("tok"),
		Retry:   fastPolicy(3),
	})
}

func TestListSessions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/chat/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected Authorization %q", got)
		}
		w.Write([]byte(`[
			{"id":"s1","title":"Greetings","gpt_target":"anthropic","created_at":"2026-01-02T03:04:05","updated_at":"2026-01-02T03:05:00"},
			{"id":"s2","title":null,"gpt_target":"openai","created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z"}
		]`))
	})

	sessions, err := client.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].DisplayTitle() != "Greetings" || sessions[0].Target != types.TargetAnthropic {
		t.Errorf("unexpected first session %+v", sessions[0])
	}
	if sessions[1].HasTitle() {
		t.Error("expected second session to be untitled")
	}
}

func TestListMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/sessions/s1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"id":"m1","session_id":"s1","role":"user","content":"Hello","was_blocked":false,"created_at":"2026-01-02T03:04:05"},
			{"id":"m2","session_id":"s1","role":"assistant","content":"","was_blocked":true,"block_reason":"pii","gpt_target":"openai","created_at":"2026-01-02T03:04:06"}
		]`))
	})

	msgs, err := client.ListMessages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if !msgs[1].WasBlocked || msgs[1].Reason() != "pii" {
		t.Errorf("expected blocked message with reason pii, got %+v", msgs[1])
	}
}

func TestAgentContextNone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	})
	agent, err := client.AgentContext(context.Background())
	if err != nil {
		t.Fatalf("AgentContext: %v", err)
	}
	if agent != nil {
		t.Errorf("expected nil agent, got %+v", agent)
	}
}

func TestAPIErrorDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Session not found"}`))
	})

	_, err := client.ListMessages(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != 404 || apiErr.Detail != "Session not found" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("404 should not match ErrUnauthorized")
	}
}

func TestAPIErrorUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"detail":"Not authenticated"}`))
		})
		_, err := client.ListSessions(context.Background())
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("status %d: expected ErrUnauthorized, got %v", status, err)
		}
	}
}

func TestTokenFailureIsUnauthorized(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client := New(&Config{BaseURL: server.URL, Tokens: auth.StaticSource("")})
	_, err := client.ListSessions(context.Background())
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, auth.ErrNoToken) {
		t.Fatalf("expected ErrUnauthorized wrapping ErrNoToken, got %v", err)
	}
	if hits.Load() != 0 {
		t.Error("no request should be sent without a token")
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	})

	sessions, err := client.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected empty list, got %d", len(sessions))
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
}

func TestMutationsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	if err := client.DeleteRule(context.Background(), "r1"); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Errorf("expected exactly 1 request, got %d", hits.Load())
	}
}

func TestCreateRuleSendsJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/filtering-rules" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["name"] != "no ssn" || body["type"] != "pii" || body["action"] != "block" {
			t.Errorf("unexpected body %v", body)
		}
		if _, ok := body["pattern"]; ok {
			t.Error("nil pattern should be omitted")
		}
		w.Write([]byte(`{"id":"r1","name":"no ssn","type":"pii","pattern":null,"action":"block","priority":1,"is_active":true,"created_at":"2026-01-01T00:00:00"}`))
	})

	rule, err := client.CreateRule(context.Background(), types.FilteringRuleCreate{
		Name: "no ssn", Type: types.RulePII, Action: types.ActionBlock, Priority: 1,
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.ID != "r1" || !rule.IsActive {
		t.Errorf("unexpected rule %+v", rule)
	}
}

func TestUpdateRulePartial(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/admin/filtering-rules/r1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		if string(data) != `{"is_active":false}` {
			t.Errorf("unexpected body %s", data)
		}
		w.Write([]byte(`{"id":"r1","is_active":false}`))
	})

	off := false
	if _, err := client.UpdateRule(context.Background(), "r1", types.FilteringRuleUpdate{IsActive: &off}); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
}

func TestSetUserRoleValidates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := client.SetUserRole(context.Background(), "u1", "owner"); err == nil {
		t.Error("expected invalid role error")
	}
}

func TestInviteDefaultsToMember(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/invitations/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@example.com" || body["role"] != "member" {
			t.Errorf("unexpected body %v", body)
		}
		w.Write([]byte(`{"id":"i1","email":"a@example.com","role":"member","status":"pending"}`))
	})

	inv, err := client.Invite(context.Background(), "a@example.com", "")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if inv.Status != "pending" {
		t.Errorf("unexpected invitation %+v", inv)
	}
}

func TestUpsertConnectionValidates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	ctx := context.Background()
	if _, err := client.UpsertConnection(ctx, types.ConnectionUpsert{Provider: "mistral", APIKey: "k"}); err == nil {
		t.Error("expected invalid provider error")
	}
	if _, err := client.UpsertConnection(ctx, types.ConnectionUpsert{Provider: types.TargetGemini}); err == nil {
		t.Error("expected missing key error")
	}
}

func TestConversationsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "50" || q.Get("offset") != "100" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"id":"s1","gpt_target":"gemini","user_email":"a@example.com","message_count":4,"blocked_count":1}]`))
	})

	convs, err := client.Conversations(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].BlockedCount != 1 {
		t.Errorf("unexpected conversations %+v", convs)
	}
}

func TestOverview(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/settings/":
			w.Write([]byte(`{"theme":"ocean","has_logo":false,"org_display_name":"Acme","vertical":"general"}`))
		case "/admin/filtering-rules":
			w.Write([]byte(`[{"id":"r1","name":"x","type":"keyword","action":"block"}]`))
		case "/admin/gpt-connections":
			w.Write([]byte(`[]`))
		case "/admin/users":
			w.Write([]byte(`[{"id":"u1","email":"a@example.com","role":"admin"}]`))
		case "/analytics/summary":
			if r.URL.Query().Get("days") != "7" {
				t.Errorf("unexpected days %q", r.URL.Query().Get("days"))
			}
			w.Write([]byte(`{"total_messages":10,"blocked_messages":2}`))
		default:
			http.NotFound(w, r)
		}
	})

	ov, err := client.Overview(context.Background(), 7)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if ov.Settings.Theme != "ocean" || len(ov.Rules) != 1 || len(ov.Users) != 1 || ov.Summary.BlockedMessages != 2 {
		t.Errorf("unexpected overview %+v", ov)
	}
}

func TestOverviewFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/users" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`null`))
	})
	_, err := client.Overview(context.Background(), 7)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	limited := New(&Config{BaseURL: client.BaseURL(), Tokens: auth.StaticSource("tok"), RateLimit: 0.001, Burst: 1, Retry: NoRetry()})

	if _, err := limited.ListSessions(context.Background()); err != nil {
		t.Fatalf("first request should use the burst: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := limited.ListSessions(ctx); err == nil {
		t.Error("expected rate limited request to fail on a cancelled context")
	}
}
