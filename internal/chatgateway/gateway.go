package chatgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/gatehouse/internal/onboarding/engine"
	"github.com/louisbranch/gatehouse/internal/platform/timeouts"
)

// Gateway opcodes, the Discord wire protocol subset this consumer speaks.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opHello          = 10
	opHeartbeatAck   = 11
	defaultHeartbeat = 41250 * time.Millisecond
)

// Intent bits requested on identify: guilds, members, and message content.
const identifyIntents = 1<<0 | 1<<1 | 1<<9 | 1<<15

// EventHandler receives decoded engine events from the gateway stream.
type EventHandler func(ctx context.Context, ev engine.Event)

// GatewayConfig holds the websocket consumer parameters.
type GatewayConfig struct {
	// URL is the gateway websocket endpoint, e.g. "wss://gateway.discord.gg".
	URL    string
	Tokens TokenSource
	// BotID filters out the bot's own messages.
	BotID   string
	Handler EventHandler
	// RoleNames maps role ids from member updates to names. Required to
	// surface role-added events; nil drops them.
	RoleNames func(ctx context.Context, ids []string) ([]string, error)
	// OnConnect fires after a successful handshake, OnDisconnect when the
	// connection drops. Used to flip health status with the gateway link.
	OnConnect    func()
	OnDisconnect func()
}

// Gateway consumes the platform event stream over a websocket, translating
// dispatch frames into engine events. It reconnects with a fixed backoff
// until the context ends.
type Gateway struct {
	cfg  GatewayConfig
	dial func(url string) (*websocket.Conn, error)

	seqMu sync.Mutex
	seq   int64

	roleMu    sync.Mutex
	prevRoles map[string]map[string]bool
}

// NewGateway creates a gateway consumer.
func NewGateway(cfg GatewayConfig) *Gateway {
	g := &Gateway{
		cfg:       cfg,
		prevRoles: make(map[string]map[string]bool),
	}
	g.dial = func(url string) (*websocket.Conn, error) {
		config, err := websocket.NewConfig(url, "http://localhost")
		if err != nil {
			return nil, fmt.Errorf("gateway config: %w", err)
		}
		return websocket.DialConfig(config)
	}
	return g
}

type frame struct {
	Op   int             `json:"op"`
	Type string          `json:"t,omitempty"`
	Seq  *int64          `json:"s,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// Run consumes the gateway until ctx ends, reconnecting after failures.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		if err := g.connectAndServe(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("chatgateway: connection lost: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(timeouts.GatewayReconnect):
		}
	}
}

func (g *Gateway) connectAndServe(ctx context.Context) error {
	conn, err := g.dial(g.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close()

	// Close the socket when the context ends so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	interval, err := g.handshake(ctx, conn)
	if err != nil {
		return err
	}
	if g.cfg.OnConnect != nil {
		g.cfg.OnConnect()
	}
	defer func() {
		if g.cfg.OnDisconnect != nil {
			g.cfg.OnDisconnect()
		}
	}()

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go g.heartbeat(conn, interval, heartbeatDone)

	for {
		var f frame
		if err := websocket.JSON.Receive(conn, &f); err != nil {
			return fmt.Errorf("receive frame: %w", err)
		}
		if f.Seq != nil {
			g.setSeq(*f.Seq)
		}
		if f.Op != opDispatch {
			continue
		}
		g.dispatch(ctx, f)
	}
}

// handshake waits for the hello frame and answers with identify.
func (g *Gateway) handshake(ctx context.Context, conn *websocket.Conn) (time.Duration, error) {
	deadline := time.Now().Add(timeouts.GatewayHandshake)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set handshake deadline: %w", err)
	}

	var hello frame
	if err := websocket.JSON.Receive(conn, &hello); err != nil {
		return 0, fmt.Errorf("receive hello: %w", err)
	}
	if hello.Op != opHello {
		return 0, fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, fmt.Errorf("clear handshake deadline: %w", err)
	}

	interval := defaultHeartbeat
	var payload struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.Data, &payload); err == nil && payload.HeartbeatInterval > 0 {
		interval = time.Duration(payload.HeartbeatInterval) * time.Millisecond
	}

	token, err := g.cfg.Tokens.Token(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve token: %w", err)
	}
	identify := map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   token,
			"intents": identifyIntents,
			"properties": map[string]string{
				"os": "linux", "browser": "gatehouse", "device": "gatehouse",
			},
		},
	}
	if err := websocket.JSON.Send(conn, identify); err != nil {
		return 0, fmt.Errorf("send identify: %w", err)
	}
	return interval, nil
}

func (g *Gateway) heartbeat(conn *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			beat := map[string]any{"op": opHeartbeat, "d": g.currentSeq()}
			if err := websocket.JSON.Send(conn, beat); err != nil {
				// The read loop observes the broken socket and reconnects.
				return
			}
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, f frame) {
	switch f.Type {
	case "MESSAGE_CREATE":
		g.dispatchMessage(ctx, f.Data)
	case "GUILD_MEMBER_UPDATE":
		g.dispatchMemberUpdate(ctx, f.Data)
	case "GUILD_MEMBER_ADD":
		g.dispatchMemberAdd(ctx, f.Data)
	}
}

func (g *Gateway) dispatchMessage(ctx context.Context, data json.RawMessage) {
	var msg struct {
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
		Content   string `json:"content"`
		Author    struct {
			ID  string `json:"id"`
			Bot bool   `json:"bot"`
		} `json:"author"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("chatgateway: decode message frame: %v", err)
		return
	}
	if msg.Author.Bot || msg.Author.ID == g.cfg.BotID || msg.Author.ID == "" {
		return
	}
	g.cfg.Handler(ctx, engine.Event{
		Kind:      engine.KindMessage,
		SubjectID: msg.Author.ID,
		SurfaceID: msg.ChannelID,
		MessageID: msg.ID,
		Content:   msg.Content,
	})
}

func (g *Gateway) dispatchMemberUpdate(ctx context.Context, data json.RawMessage) {
	var update struct {
		Roles []string `json:"roles"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &update); err != nil {
		log.Printf("chatgateway: decode member update: %v", err)
		return
	}
	if update.User.ID == "" {
		return
	}

	added, sawBefore := g.roleDelta(update.User.ID, update.Roles)
	if !sawBefore || len(added) == 0 {
		return
	}
	if g.cfg.RoleNames == nil {
		return
	}
	names, err := g.cfg.RoleNames(ctx, added)
	if err != nil {
		log.Printf("chatgateway: resolve role names subject=%q: %v", update.User.ID, err)
		return
	}
	if len(names) == 0 {
		return
	}
	g.cfg.Handler(ctx, engine.Event{
		Kind:           engine.KindRoleAdded,
		SubjectID:      update.User.ID,
		AddedRoleNames: names,
	})
}

func (g *Gateway) dispatchMemberAdd(ctx context.Context, data json.RawMessage) {
	var add struct {
		Roles []string `json:"roles"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &add); err != nil {
		log.Printf("chatgateway: decode member add: %v", err)
		return
	}
	if add.User.ID == "" {
		return
	}
	// Seed the role baseline so the next update diffs cleanly.
	g.roleDelta(add.User.ID, add.Roles)
	g.cfg.Handler(ctx, engine.Event{
		Kind:      engine.KindMemberJoin,
		SubjectID: add.User.ID,
	})
}

// roleDelta records the subject's current role set and returns the ids added
// since the previous snapshot. The first observation establishes a baseline
// and reports nothing: without a before-image there is no delta to trust.
func (g *Gateway) roleDelta(subjectID string, roles []string) (added []string, sawBefore bool) {
	current := make(map[string]bool, len(roles))
	for _, id := range roles {
		current[id] = true
	}

	g.roleMu.Lock()
	defer g.roleMu.Unlock()

	prev, sawBefore := g.prevRoles[subjectID]
	g.prevRoles[subjectID] = current
	if !sawBefore {
		return nil, false
	}
	for _, id := range roles {
		if !prev[id] {
			added = append(added, id)
		}
	}
	return added, true
}

func (g *Gateway) setSeq(seq int64) {
	g.seqMu.Lock()
	g.seq = seq
	g.seqMu.Unlock()
}

func (g *Gateway) currentSeq() *int64 {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()
	if g.seq == 0 {
		return nil
	}
	seq := g.seq
	return &seq
}
