package modguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

var ErrBridgeStop = errors.New("bridge stopped")

// BridgeHandler receives the host's player events.
// *Gate implements it.
type BridgeHandler interface {
	AdmitPlayer(ctx context.Context, p Player) Admission
	GuardTeamJoin(ctx context.Context, clientID ClientID, team Team) bool
	OnDisconnect(ctx context.Context, clientID ClientID)
}

var (
	_ Transport        = (*Bridge)(nil)
	_ Broadcaster      = (*Bridge)(nil)
	_ MetadataProvider = (*Bridge)(nil)
	_ BridgeHandler    = (*Gate)(nil)
)

// Bridge connects the game host over a websocket.
//
// It serves one host session at a time; a new session replaces the old
// one. Commands sent while no session is attached fail with
// ErrHostUnavailable.
type Bridge struct {
	// Handler must be set before the first session is served.
	Handler BridgeHandler

	opt    *BridgeOption
	logger *slog.Logger
	hub    *Hub[ModDescriptor]

	mu      sync.Mutex
	session *bridgeSession
}

type BridgeOption struct {
	Logger *slog.Logger

	// MaxMessageLength limits inbound frames. Defaults to 65536.
	MaxMessageLength int64

	// PingInterval defaults to 10s.
	PingInterval time.Duration

	// SendBuffer is the number of commands queued per session.
	// Defaults to 64.
	SendBuffer int

	// OriginPatterns is passed to websocket.Accept.
	OriginPatterns []string
}

func (opt *BridgeOption) maxMessageLength() int64 {
	const defaultMaxMessageLength = 65536

	if opt == nil || opt.MaxMessageLength == 0 {
		return defaultMaxMessageLength
	}
	return opt.MaxMessageLength
}

func (opt *BridgeOption) pingInterval() time.Duration {
	if opt == nil || opt.PingInterval == 0 {
		return 10 * time.Second
	}
	return opt.PingInterval
}

func (opt *BridgeOption) sendBuffer() int {
	if opt == nil || opt.SendBuffer == 0 {
		return 64
	}
	return opt.SendBuffer
}

func NewBridge(option *BridgeOption) *Bridge {
	b := &Bridge{
		opt: option,
		hub: NewHub[ModDescriptor](),
	}
	if option != nil {
		b.logger = option.Logger
	}
	b.logger = loggerOrDiscard(b.logger)
	return b
}

type bridgeSession struct {
	ctx      context.Context
	cancel   context.CancelFunc
	send     chan CommandMsg
	isServer atomic.Bool

	mu      sync.Mutex
	clients map[ClientID]struct{}
}

func newBridgeSession(ctx context.Context, cancel context.CancelFunc, buf int) *bridgeSession {
	return &bridgeSession{
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan CommandMsg, buf),
		clients: make(map[ClientID]struct{}),
	}
}

func (s *bridgeSession) sendCtx(ctx context.Context, msg CommandMsg) error {
	select {
	case s.send <- msg:
		return nil
	case <-s.ctx.Done():
		return ErrHostUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *bridgeSession) addClient(id ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[id] = struct{}{}
}

func (s *bridgeSession) removeClient(id ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

func (s *bridgeSession) hasClient(id ClientID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[id]
	return ok
}

func (b *Bridge) current() *bridgeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Attached reports whether a host session is live.
func (b *Bridge) Attached() bool {
	return b.current() != nil
}

// IsServer implements Transport.
func (b *Bridge) IsServer() bool {
	s := b.current()
	return s != nil && s.isServer.Load()
}

// Disconnect implements Transport. Only clients announced in the current
// session can be kicked.
func (b *Bridge) Disconnect(ctx context.Context, clientID ClientID) error {
	s := b.current()
	if s == nil {
		return ErrHostUnavailable
	}
	if !s.hasClient(clientID) {
		return ErrClientGone
	}
	return s.sendCtx(ctx, &KickMsg{ClientID: clientID})
}

// Broadcast implements Broadcaster.
func (b *Bridge) Broadcast(ctx context.Context, msg string) error {
	s := b.current()
	if s == nil {
		return ErrHostUnavailable
	}
	return s.sendCtx(ctx, &BroadcastMsg{Message: msg})
}

// RequestDetails implements MetadataProvider.
func (b *Bridge) RequestDetails(ctx context.Context, modIDs []ModID) error {
	s := b.current()
	if s == nil {
		return ErrHostUnavailable
	}
	return s.sendCtx(ctx, &RequestDetailsMsg{ModIDs: modIDs})
}

// Subscribe implements MetadataProvider.
func (b *Bridge) Subscribe(fn func(ctx context.Context, d ModDescriptor)) *Subscription {
	return b.hub.Subscribe(fn)
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx = ctxWithRemoteAddr(ctx, r)
	ctx = ctxWithSessionID(ctx)

	var acceptOpts websocket.AcceptOptions
	if b.opt != nil {
		acceptOpts.OriginPatterns = b.opt.OriginPatterns
	}
	conn, err := websocket.Accept(w, r, &acceptOpts)
	if err != nil {
		b.logger.InfoContext(ctx, "failed to accept websocket", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(b.opt.maxMessageLength())

	s := newBridgeSession(ctx, cancel, b.opt.sendBuffer())
	b.replaceSession(ctx, s)

	b.logger.InfoContext(ctx, "host session start")

	errs := make(chan error, 2)
	defer func() {
		err := errors.Join(ErrBridgeStop, <-errs, <-errs)
		b.logger.InfoContext(ctx, "host session end", "error", err)
	}()

	go func() {
		defer cancel()
		err := b.serveRead(ctx, conn, s)
		errs <- fmt.Errorf("serveRead terminated: %w", err)
	}()

	go func() {
		defer cancel()
		err := b.serveWrite(ctx, conn, s)
		errs <- fmt.Errorf("serveWrite terminated: %w", err)
	}()

	<-ctx.Done()
	b.detach(s)
	conn.Close(websocket.StatusNormalClosure, "")
}

// replaceSession makes s current and ends the previous session.
func (b *Bridge) replaceSession(ctx context.Context, s *bridgeSession) {
	b.mu.Lock()
	old := b.session
	b.session = s
	b.mu.Unlock()

	if old != nil {
		b.logger.InfoContext(ctx, "replacing previous host session")
		old.cancel()
	}
}

func (b *Bridge) detach(s *bridgeSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == s {
		b.session = nil
	}
}

func (b *Bridge) serveRead(ctx context.Context, conn *websocket.Conn, s *bridgeSession) error {
	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return io.EOF
			}
			return fmt.Errorf("failed to read websocket: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}

		msg, err := ParseHostMsg(payload)
		if err != nil {
			b.logger.InfoContext(ctx, "failed to parse host msg", "error", err)
			continue
		}

		b.logger.DebugContext(ctx, "recv host msg", "hostMsg", json.RawMessage(payload))

		b.dispatch(ctx, s, msg)
	}
}

func (b *Bridge) dispatch(ctx context.Context, s *bridgeSession, msg HostMsg) {
	switch msg := msg.(type) {
	case *HostHelloMsg:
		s.isServer.Store(msg.IsServer)
		b.logger.InfoContext(ctx, "host hello", "isServer", msg.IsServer)

	case *HostConnectMsg:
		s.addClient(msg.ClientID)
		if b.Handler != nil {
			b.Handler.AdmitPlayer(ctx, msg.Player())
		}

	case *HostMetadataMsg:
		b.hub.Publish(ctx, msg.Descriptor())

	case *HostTeamJoinMsg:
		allow := true
		if b.Handler != nil {
			allow = b.Handler.GuardTeamJoin(ctx, msg.ClientID, msg.Team)
		}
		result := &TeamJoinResultMsg{RequestID: msg.RequestID, ClientID: msg.ClientID, Allow: allow}
		if err := s.sendCtx(ctx, result); err != nil {
			b.logger.WarnContext(ctx, "failed to answer team join", "clientID", msg.ClientID, "error", err)
		}

	case *HostDisconnectMsg:
		s.removeClient(msg.ClientID)
		if b.Handler != nil {
			b.Handler.OnDisconnect(ctx, msg.ClientID)
		}
	}
}

func (b *Bridge) serveWrite(ctx context.Context, conn *websocket.Conn, s *bridgeSession) error {
	pingTicker := time.NewTicker(b.opt.pingInterval())
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("serveWrite terminated by ctx: %w", ctx.Err())

		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, b.opt.pingInterval())
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to send ping: %w", err)
			}

		case msg := <-s.send:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return fmt.Errorf("failed to write websocket: %w", err)
			}
			b.logger.DebugContext(ctx, "sent command msg", "commandMsg", msg)
		}
	}
}
