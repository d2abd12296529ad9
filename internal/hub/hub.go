package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/matchmaking-client/internal/matchmaking"
	"github.com/DoyleJ11/matchmaking-client/internal/replica"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

const DefaultTick = 100 * time.Millisecond

type Msg interface{ isHubMsg() }

// Replicated carries a push from the replication layer.
type Replicated struct{ Event replica.Event }

type BackendReply struct {
	ID    string
	Reply types.Reply
}

type SessionCreated struct {
	ID types.SessionID
	OK bool
}

type SessionEntered struct {
	ID types.SessionID
	OK bool
}

type SessionDataUpdated struct{ ID types.SessionID }

type SessionMembership struct {
	ID     types.SessionID
	Member types.SteamID
	Joined bool
}

type SessionChat struct {
	ID      types.SessionID
	From    types.SteamID
	Payload []byte
}

type SessionJoinRequested struct{ ID types.SessionID }

// FromClient runs a command. Reply, when set, must be buffered.
type FromClient struct {
	Cmd   matchmaking.Command
	Reply chan error
}

// GameStatus reports what the game knows about the match it is on.
type GameStatus struct {
	Ended bool
	Safe  bool
}

type Join struct {
	ClientID string
	Outbox   chan Notice // where this client wants to receive notices
}

type Leave struct{ ClientID string }

type DumpResult struct {
	Data any
	Err  error
}

type GetDump struct {
	Kind  string
	Reply chan DumpResult
}

type Shutdown struct{}

func (Replicated) isHubMsg()           {}
func (BackendReply) isHubMsg()         {}
func (SessionCreated) isHubMsg()       {}
func (SessionEntered) isHubMsg()       {}
func (SessionDataUpdated) isHubMsg()   {}
func (SessionMembership) isHubMsg()    {}
func (SessionChat) isHubMsg()          {}
func (SessionJoinRequested) isHubMsg() {}
func (FromClient) isHubMsg()           {}
func (GameStatus) isHubMsg()           {}
func (Join) isHubMsg()                 {}
func (Leave) isHubMsg()                {}
func (GetDump) isHubMsg()              {}
func (Shutdown) isHubMsg()             {}

type NoticeKind string

const (
	NoticeSnapshot   NoticeKind = "snapshot"
	NoticeMessage    NoticeKind = "message"
	NoticeChat       NoticeKind = "chat"
	NoticeDisconnect NoticeKind = "disconnect"
)

// Notice is what the hub pushes to presentation clients.
type Notice struct {
	Kind    NoticeKind
	Version int
	State   matchmaking.Snapshot
	Message types.UserMessage
	From    types.SteamID
	Text    string
}

type Options struct {
	Tick time.Duration
	Log  *zap.SugaredLogger
}

// Hub owns the orchestrator. Every input is serialized through the inbox, so
// the orchestrator never sees two callers at once.
type Hub struct {
	inbox   chan Msg
	orch    *matchmaking.Orchestrator
	game    *gameBridge
	clients map[string]chan Notice
	version int
	dirty   bool
	tick    time.Duration
	log     *zap.SugaredLogger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, cfg matchmaking.Config, deps matchmaking.Deps, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	h := &Hub{
		inbox:   make(chan Msg, 64),
		clients: make(map[string]chan Notice),
		tick:    opts.Tick,
		log:     opts.Log,
		ctx:     ctx,
		cancel:  cancel,
	}
	h.game = &gameBridge{hub: h}
	deps.Game = h.game
	deps.Events = events{hub: h}
	if deps.Log == nil {
		deps.Log = opts.Log
	}
	h.orch = matchmaking.New(cfg, deps)

	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Send delivers m unless the hub or ctx is done first.
func (h *Hub) Send(ctx context.Context, m Msg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-ticker.C:
			h.orch.Tick()

		case m := <-h.inbox:
			if !h.handle(m) {
				h.shutdown()
				return
			}
		}
		h.flush()
	}
}

func (h *Hub) handle(m Msg) bool {
	switch msg := m.(type) {
	case Replicated:
		h.orch.OnReplication(msg.Event)

	case BackendReply:
		h.orch.OnReply(msg.ID, msg.Reply)

	case SessionCreated:
		h.orch.OnSessionCreated(msg.ID, msg.OK)

	case SessionEntered:
		h.orch.OnSessionEntered(msg.ID, msg.OK)

	case SessionDataUpdated:
		h.orch.OnSessionDataUpdated(msg.ID)

	case SessionMembership:
		h.orch.OnSessionMembershipChanged(msg.ID, msg.Member, msg.Joined)

	case SessionChat:
		h.orch.OnSessionChat(msg.ID, msg.From, msg.Payload)

	case SessionJoinRequested:
		h.orch.OnSessionJoinRequested(msg.ID)

	case FromClient:
		err := h.orch.Execute(msg.Cmd)
		if err != nil {
			h.log.Infow("command failed", "command", msg.Cmd.Type, "error", err)
		}
		// Commands can change state without firing an event (e.g. a
		// rejected edit), so clients always get a fresh snapshot.
		h.dirty = true
		if msg.Reply != nil {
			msg.Reply <- err
		}

	case GameStatus:
		h.game.ended, h.game.safe = msg.Ended, msg.Safe
		h.dirty = true

	case Join:
		h.clients[msg.ClientID] = msg.Outbox
		h.sendTo(msg.ClientID, msg.Outbox, h.snapshot())

	case Leave:
		delete(h.clients, msg.ClientID)

	case GetDump:
		data, err := h.orch.Dump(msg.Kind)
		if err == nil {
			h.log.Infow("dump", "kind", msg.Kind, "state", data)
		}
		msg.Reply <- DumpResult{Data: data, Err: err}

	case Shutdown:
		return false
	}
	return true
}

func (h *Hub) snapshot() Notice {
	return Notice{Kind: NoticeSnapshot, Version: h.version, State: h.orch.Snapshot()}
}

func (h *Hub) flush() {
	if !h.dirty {
		return
	}
	h.dirty = false
	h.version++
	h.broadcast(h.snapshot())
}

func (h *Hub) broadcast(n Notice) {
	for id, ch := range h.clients {
		h.sendTo(id, ch, n)
	}
}

func (h *Hub) sendTo(id string, ch chan Notice, n Notice) {
	select {
	case ch <- n:
	default:
		// Client is slow/full - drop them.
		h.log.Infow("dropping slow client", "client", id)
		close(ch)
		delete(h.clients, id)
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch) // Tell client no more notices
		delete(h.clients, id)
	}
	h.cancel()
}

// events turns orchestrator notifications into client notices. Callers are
// always on the hub goroutine.
type events struct{ hub *Hub }

func (e events) PartyUpdated() { e.hub.dirty = true }
func (e events) LobbyUpdated() { e.hub.dirty = true }
func (e events) PingUpdated()  { e.hub.dirty = true }

func (e events) UserMessage(m types.UserMessage) {
	e.hub.broadcast(Notice{Kind: NoticeMessage, Message: m, Text: m.Text})
}

func (e events) PartyChat(from types.SteamID, text string) {
	e.hub.broadcast(Notice{Kind: NoticeChat, From: from, Text: text})
}

// gameBridge stands in for the game client: the UI reports match status and
// carries out disconnect requests.
type gameBridge struct {
	hub   *Hub
	ended bool
	safe  bool
}

func (g *gameBridge) MatchEnded() bool  { return g.ended }
func (g *gameBridge) SafeToLeave() bool { return g.safe }

func (g *gameBridge) Disconnect(reason string) {
	g.hub.log.Infow("asking game to disconnect", "reason", reason)
	g.hub.broadcast(Notice{Kind: NoticeDisconnect, Text: reason})
}
