package chatgateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/gatehouse/internal/onboarding/engine"
)

type eventSink struct {
	mu     sync.Mutex
	events []engine.Event
	seen   chan struct{}
}

func newEventSink() *eventSink {
	return &eventSink{seen: make(chan struct{}, 16)}
}

func (s *eventSink) handle(_ context.Context, ev engine.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.seen <- struct{}{}
}

func (s *eventSink) wait(t *testing.T, n int) []engine.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		s.mu.Lock()
		count := len(s.events)
		s.mu.Unlock()
		if count >= n {
			break
		}
		select {
		case <-s.seen:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, have %d", n, count)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Event(nil), s.events...)
}

// serveGateway runs a scripted gateway: hello, read identify, then the given
// dispatch frames.
func serveGateway(t *testing.T, dispatches []frame) (url string, identified chan map[string]any) {
	t.Helper()
	identified = make(chan map[string]any, 1)

	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		hello := map[string]any{
			"op": opHello,
			"d":  map[string]any{"heartbeat_interval": 45000},
		}
		if err := websocket.JSON.Send(conn, hello); err != nil {
			return
		}
		var identify map[string]any
		if err := websocket.JSON.Receive(conn, &identify); err != nil {
			return
		}
		identified <- identify
		seq := int64(0)
		for _, d := range dispatches {
			seq++
			d.Seq = &seq
			if err := websocket.JSON.Send(conn, d); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		var discard json.RawMessage
		for websocket.JSON.Receive(conn, &discard) == nil {
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http"), identified
}

func dispatchFrame(t *testing.T, eventType string, data any) frame {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal dispatch: %v", err)
	}
	return frame{Op: opDispatch, Type: eventType, Data: raw}
}

func TestGatewayTranslatesMessages(t *testing.T) {
	dispatches := []frame{
		dispatchFrame(t, "MESSAGE_CREATE", map[string]any{
			"id": "m1", "channel_id": "chan-1", "content": "verify me",
			"author": map[string]any{"id": "u1"},
		}),
		// The bot's own echo and other bots are filtered out.
		dispatchFrame(t, "MESSAGE_CREATE", map[string]any{
			"id": "m2", "channel_id": "chan-1", "content": "prompt",
			"author": map[string]any{"id": "bot-1"},
		}),
		dispatchFrame(t, "MESSAGE_CREATE", map[string]any{
			"id": "m3", "channel_id": "chan-1", "content": "beep",
			"author": map[string]any{"id": "u9", "bot": true},
		}),
		dispatchFrame(t, "MESSAGE_CREATE", map[string]any{
			"id": "m4", "channel_id": "chan-1", "content": "second",
			"author": map[string]any{"id": "u1"},
		}),
	}
	url, identified := serveGateway(t, dispatches)

	sink := newEventSink()
	gateway := NewGateway(GatewayConfig{
		URL:     url,
		Tokens:  StaticToken("bot-token"),
		BotID:   "bot-1",
		Handler: sink.handle,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gateway.Run(ctx)

	identify := <-identified
	data, _ := identify["d"].(map[string]any)
	if got, _ := data["token"].(string); got != "bot-token" {
		t.Fatalf("identify token = %q, want %q", got, "bot-token")
	}

	events := sink.wait(t, 2)
	if events[0].Kind != engine.KindMessage || events[0].SubjectID != "u1" || events[0].Content != "verify me" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].MessageID != "m4" {
		t.Fatalf("second event = %+v, bot messages should be skipped", events[1])
	}
}

func TestGatewayTranslatesMembershipEvents(t *testing.T) {
	dispatches := []frame{
		dispatchFrame(t, "GUILD_MEMBER_ADD", map[string]any{
			"user": map[string]any{"id": "u1"}, "roles": []string{},
		}),
		// The join seeded an empty baseline, so this reads as a grant.
		dispatchFrame(t, "GUILD_MEMBER_UPDATE", map[string]any{
			"user": map[string]any{"id": "u1"}, "roles": []string{"r1"},
		}),
		// Unchanged roles produce nothing.
		dispatchFrame(t, "GUILD_MEMBER_UPDATE", map[string]any{
			"user": map[string]any{"id": "u1"}, "roles": []string{"r1"},
		}),
	}
	url, _ := serveGateway(t, dispatches)

	sink := newEventSink()
	gateway := NewGateway(GatewayConfig{
		URL:     url,
		Tokens:  StaticToken("bot-token"),
		Handler: sink.handle,
		RoleNames: func(_ context.Context, ids []string) ([]string, error) {
			names := make([]string, 0, len(ids))
			for _, id := range ids {
				if id == "r1" {
					names = append(names, "Verified")
				}
			}
			return names, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gateway.Run(ctx)

	events := sink.wait(t, 2)
	if events[0].Kind != engine.KindMemberJoin || events[0].SubjectID != "u1" {
		t.Fatalf("first event = %+v, want a member join", events[0])
	}
	if events[1].Kind != engine.KindRoleAdded || len(events[1].AddedRoleNames) != 1 || events[1].AddedRoleNames[0] != "Verified" {
		t.Fatalf("second event = %+v, want the Verified role addition", events[1])
	}
}

func TestGatewayConnectionHooks(t *testing.T) {
	url, _ := serveGateway(t, nil)

	connected := make(chan struct{}, 1)
	disconnected := make(chan struct{}, 1)
	sink := newEventSink()
	gateway := NewGateway(GatewayConfig{
		URL:          url,
		Tokens:       StaticToken("bot-token"),
		Handler:      sink.handle,
		OnConnect:    func() { connected <- struct{}{} },
		OnDisconnect: func() { disconnected <- struct{}{} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gateway.Run(ctx)

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("connect hook did not fire after handshake")
	}
	select {
	case <-disconnected:
		t.Fatal("disconnect hook fired while the link was up")
	default:
	}

	cancel()
	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect hook did not fire when the link dropped")
	}
}

func TestRoleDeltaBaseline(t *testing.T) {
	gateway := NewGateway(GatewayConfig{})

	added, sawBefore := gateway.roleDelta("u1", []string{"r1", "r2"})
	if sawBefore || added != nil {
		t.Fatalf("first observation = (%v, %v), want a silent baseline", added, sawBefore)
	}

	added, sawBefore = gateway.roleDelta("u1", []string{"r1", "r2", "r3"})
	if !sawBefore || len(added) != 1 || added[0] != "r3" {
		t.Fatalf("delta = (%v, %v), want just r3", added, sawBefore)
	}

	// Removals produce no additions.
	added, sawBefore = gateway.roleDelta("u1", []string{"r1"})
	if !sawBefore || len(added) != 0 {
		t.Fatalf("delta = (%v, %v), want no additions on removal", added, sawBefore)
	}
}

func TestAppCredentialsCacheAndRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	source := NewAppCredentials("app-1", "signing-secret", 5*time.Minute).
		WithClock(func() time.Time { return now })

	first, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if parts := strings.Split(first, "."); len(parts) != 3 {
		t.Fatalf("token %q is not a compact JWT", first)
	}

	second, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if second != first {
		t.Fatal("expected the cached token inside its lifetime")
	}

	now = now.Add(5 * time.Minute)
	third, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if third == first {
		t.Fatal("expected a fresh token after expiry")
	}
}

func TestAppCredentialsRejectMissingMaterial(t *testing.T) {
	if _, err := NewAppCredentials("", "secret", 0).Token(context.Background()); err == nil {
		t.Fatal("expected error for missing app id")
	}
	if _, err := (StaticToken("")).Token(context.Background()); err == nil {
		t.Fatal("expected error for empty bot token")
	}
}
