package matchmaking

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/matchmaking-client/internal/connstate"
	"github.com/DoyleJ11/matchmaking-client/internal/criteria"
	"github.com/DoyleJ11/matchmaking-client/internal/dispatch"
	"github.com/DoyleJ11/matchmaking-client/internal/history"
	"github.com/DoyleJ11/matchmaking-client/internal/invite"
	"github.com/DoyleJ11/matchmaking-client/internal/match"
	"github.com/DoyleJ11/matchmaking-client/internal/ping"
	"github.com/DoyleJ11/matchmaking-client/internal/replica"
	"github.com/DoyleJ11/matchmaking-client/internal/rpc"
	"github.com/DoyleJ11/matchmaking-client/internal/session"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

var ErrUnknownMode = errors.New("unknown matchmaking mode")
var ErrNoSession = errors.New("not in a peer session")

const protocolMismatchText = "Your game client is out of date. Restart the game to update before matchmaking."

// Transport sends requests to the matchmaking backend. Replies arrive later through OnReply.
type Transport interface {
	Send(id string, req types.Request) error
	Connected() bool
}

// Game is the local game client: the connected server's match state and a way to leave it.
type Game interface {
	match.GameSession
	Disconnect(reason string)
}

// Events are the notifications presentation layers listen to. They carry no
// state; listeners re-read whatever they display.
type Events interface {
	PartyUpdated()
	LobbyUpdated()
	PingUpdated()
	UserMessage(msg types.UserMessage)
	PartyChat(from types.SteamID, text string)
}

type Config struct {
	Self                   types.SteamID
	ClientVersion          uint32
	RequestTimeout         time.Duration
	PartyUpdateDelay       time.Duration
	InviteTimeout          time.Duration
	SessionTimeout         time.Duration
	PingInterval           time.Duration
	PingNotifyEvery        time.Duration
	PingOverrides          map[string]time.Duration
	AllowMatchmakingInGame bool
	CriteriaFile           string
	Initial                types.SearchCriteria
}

type Deps struct {
	Transport Transport
	Sessions  session.Sessions
	Game      Game
	Events    Events
	Measurer  ping.Measurer
	History   *history.Log
	Log       *zap.SugaredLogger
	Now       func() time.Time
}

// Orchestrator reconciles local matchmaking intent with the backend's party
// and lobby. Every method runs on one goroutine; nothing here blocks.
type Orchestrator struct {
	cfg  Config
	self types.SteamID
	log  *zap.SugaredLogger
	now  func() time.Time

	transport Transport
	sessions  session.Sessions
	game      Game
	events    Events

	cache      *replica.Cache
	view       replica.View
	criteria   *criteria.Store
	dispatch   *dispatch.Dispatcher
	calls      *rpc.Tracker
	conn       connstate.Machine
	match      *match.Tracker
	assoc      *session.Associator
	invite     *invite.Flow
	ping       *ping.Scheduler
	pingNotify *ping.Notifier

	wants                 bool
	pendingJoin           types.GroupID
	pendingJoinDeadline   time.Time
	deferredDisconnect    bool
	inviteDisconnectAsked bool
	pingForced            bool
}

func New(cfg Config, deps Deps) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	notifyEvery := cfg.PingNotifyEvery
	if notifyEvery <= 0 {
		notifyEvery = 30 * time.Second
	}
	hist := deps.History
	if hist == nil {
		hist = history.NewLog(0, log)
	}

	cache := replica.NewCache()
	store := criteria.NewStore(cfg.Initial)
	return &Orchestrator{
		cfg:        cfg,
		self:       cfg.Self,
		log:        log,
		now:        now,
		transport:  deps.Transport,
		sessions:   deps.Sessions,
		game:       deps.Game,
		events:     deps.Events,
		cache:      cache,
		view:       replica.NewView(cache, cfg.Self),
		criteria:   store,
		dispatch:   dispatch.New(store, cfg.PartyUpdateDelay),
		calls:      rpc.NewTracker(cfg.RequestTimeout),
		conn:       connstate.Machine{State: connstate.Disconnected},
		match:      match.NewTracker(hist, now),
		assoc:      session.NewAssociator(deps.Sessions, cfg.SessionTimeout, log),
		invite:     invite.New(cfg.InviteTimeout),
		ping:       ping.NewScheduler(deps.Measurer, cfg.PingInterval, cfg.PingOverrides),
		pingNotify: ping.NewNotifier(notifyEvery, 1),
	}
}

func (o *Orchestrator) party() *types.Party {
	p, err := o.view.Party()
	if err != nil {
		o.log.DPanicw("replicated party view inconsistent", "error", err)
		return nil
	}
	return p
}

func (o *Orchestrator) lobby() *types.Lobby {
	l, err := o.view.Lobby()
	if err != nil {
		o.log.DPanicw("replicated lobby view inconsistent", "error", err)
		return nil
	}
	return l
}

func (o *Orchestrator) Party() *types.Party                { return o.party() }
func (o *Orchestrator) Lobby() *types.Lobby                { return o.lobby() }
func (o *Orchestrator) WantsMatchmaking() bool             { return o.wants }
func (o *Orchestrator) WizardStep() types.WizardStep       { return o.criteria.Step() }
func (o *Orchestrator) Criteria() types.SearchCriteria     { return o.criteria.Criteria() }
func (o *Orchestrator) ConnectionState() connstate.Machine { return o.conn }
func (o *Orchestrator) HasLiveMatch() bool                 { return o.match.HasLiveMatch() }
func (o *Orchestrator) Assignment() match.Assignment       { return o.match.Current() }
func (o *Orchestrator) PingTable() ping.Table              { return o.ping.Table() }
func (o *Orchestrator) InviteStep() invite.Step            { return o.invite.Step() }
func (o *Orchestrator) AbandonStatus() match.AbandonStatus { return o.match.AbandonStatus(o.conn, o.game) }

// precondition reports a caller bug: loud in development builds, a no-op in production.
func (o *Orchestrator) precondition(err error, keysAndValues ...any) {
	o.log.DPanicw("matchmaking precondition violated", append([]any{"error", err}, keysAndValues...)...)
}

// BeginMatchmaking enters the setup flow for mode.
func (o *Orchestrator) BeginMatchmaking(mode types.Mode) error {
	o.wants = true
	party := o.party()
	step := mode.WizardStep()
	if step == types.StepInvalid {
		if party == nil {
			return ErrUnknownMode
		}
		o.reconcileSession()
		return nil
	}

	if party == nil || (party.Criteria.Mode != mode && party.IsLeader(o.self)) {
		f := func(c *types.SearchCriteria) {
			c.Mode = mode
			c.LateJoinOK = false
		}
		if err := o.MutateCriteria(f); err != nil {
			return err
		}
		if err := o.RequestWizardStep(step); err != nil {
			return err
		}
	}
	o.reconcileSession()
	return nil
}

// EndMatchmaking leaves the queue and the party's setup flow. An abandon also
// gives up the assigned match.
func (o *Orchestrator) EndMatchmaking(abandon bool) {
	o.log.Infow("ending matchmaking", "abandon", abandon)
	o.wants = false
	o.dispatch.Cancel()
	o.criteria.SetStep(types.StepInvalid)
	o.send("party.exit_matchmaking", types.ExitMatchmaking{Abandon: abandon}, nil, nil)

	if abandon && o.match.MarkEnded() {
		o.events.LobbyUpdated()
	}
	if o.conn.ConnectedToMatchServer(o.match.Current().ServerID) {
		o.game.Disconnect("matchmaking ended")
	}
	o.reconcileSession()
	o.events.PartyUpdated()
}

// RequestWizardStep moves the party (or the local flow when solo) to step.
func (o *Orchestrator) RequestWizardStep(step types.WizardStep) error {
	queued, err := o.dispatch.RequestWizardStep(step, o.party(), o.self, o.now())
	if err != nil {
		o.precondition(err, "step", step)
		return err
	}
	o.wants = true
	if !queued {
		o.events.PartyUpdated()
	}
	return nil
}

// MutateCriteria edits the search criteria, mirrored to the party when there is one.
func (o *Orchestrator) MutateCriteria(f criteria.Mutation) error {
	queued, err := o.dispatch.MutateCriteria(f, o.party(), o.self, o.now())
	if err != nil {
		o.precondition(err)
		return err
	}
	if !queued {
		o.events.PartyUpdated()
	}
	return nil
}

func (o *Orchestrator) FlushNow() { o.dispatch.FlushNow(o.now()) }

func (o *Orchestrator) SaveCasualCriteria() error {
	return criteria.SaveCasual(o.cfg.CriteriaFile, o.criteria.Casual())
}

func (o *Orchestrator) LoadCasualCriteria() error {
	maps, err := criteria.LoadCasual(o.cfg.CriteriaFile)
	if err != nil {
		return err
	}
	return o.MutateCriteria(criteria.ReplaceCasualMaps(maps))
}

// InvalidatePing forces a fresh measurement. Its result is reported to the
// backend even inside the notification window.
func (o *Orchestrator) InvalidatePing() {
	o.ping.Invalidate()
	o.pingForced = true
}

// OnReplication applies a push from the replication layer.
func (o *Orchestrator) OnReplication(ev replica.Event) {
	if err := o.cache.Apply(ev); err != nil {
		o.log.Warnw("dropping replication event", "error", err)
		return
	}
	if ev.Owner != o.self {
		return
	}
	switch ev.Object.Kind() {
	case types.KindParty:
		o.onPartyChanged(ev.Type)
	case types.KindLobby:
		o.match.Update(o.lobby(), o.conn, o.game)
		o.events.LobbyUpdated()
	}
}

func (o *Orchestrator) onPartyChanged(evt replica.EventType) {
	party := o.party()
	if party == nil {
		o.events.PartyUpdated()
		o.reconcileSession()
		return
	}

	// A party that shows up without us asking for it, typically left over
	// from an earlier session. Only judged once, when it first arrives.
	rejoin := false
	if evt == replica.EvtCreated && !o.wants && !o.invite.Active() && o.pendingJoin == 0 {
		switch {
		case party.InSetup() && len(party.Members) <= 1:
			o.log.Infow("leaving unwanted party", "group", party.GroupID)
			o.EndMatchmaking(false)
			return
		case party.InSetup():
			rejoin = true
		case !o.match.HasLiveMatch():
			o.log.Infow("leaving party with no live match", "group", party.GroupID, "state", party.State)
			o.EndMatchmaking(false)
			return
		}
	}

	o.criteria.Rebase(party.Criteria, o.dispatch.Unconfirmed())
	o.dispatch.SyncStepFromParty(*party)
	if rejoin {
		o.log.Infow("returning to existing party's setup", "group", party.GroupID, "members", len(party.Members))
		if err := o.BeginMatchmaking(party.Criteria.Mode); err != nil {
			o.log.Warnw("cannot return to party setup", "group", party.GroupID, "error", err)
		}
	}
	o.events.PartyUpdated()
	o.reconcileSession()

	switch o.invite.Step() {
	case invite.StepReadingSessionMetadata, invite.StepJoiningParty:
		o.completeInvite(*party)
	}
	if o.pendingJoin != 0 && party.GroupID == o.pendingJoin {
		o.completePendingJoin(*party)
	}
}

// OnReply routes a backend reply to the request that caused it.
func (o *Orchestrator) OnReply(id string, r types.Reply) {
	if !o.calls.Resolve(id, r) {
		o.log.Debugw("reply for unknown request", "id", id, "result", r.Result)
	}
}

func (o *Orchestrator) send(kind string, req types.Request, onReply func(types.Reply), onTimeout func()) string {
	id := o.calls.Start(kind, o.now(), onReply, onTimeout)
	if err := o.transport.Send(id, req); err != nil {
		// the timeout continuation covers recovery
		o.log.Warnw("backend send failed", "kind", kind, "id", id, "error", err)
	}
	return id
}

// Tick runs one pass of every periodic task. It never fails.
func (o *Orchestrator) Tick() {
	now := o.now()
	o.calls.Expire(now)
	o.sendPartyUpdate(now)
	o.tickInvite(now)
	o.tickPendingJoin(now)
	if o.wants {
		o.reconcileSession()
	}
	if o.match.Update(o.lobby(), o.conn, o.game) {
		o.events.LobbyUpdated()
	}
	o.tickPing(now)
}

func (o *Orchestrator) sendPartyUpdate(now time.Time) {
	req, ticket, ok := o.dispatch.Next(now)
	if !ok {
		return
	}
	o.send("party.update", req,
		func(r types.Reply) { o.onPartyUpdateReply(ticket, r) },
		func() { o.onPartyUpdateTimeout(ticket) },
	)
}

func (o *Orchestrator) onPartyUpdateReply(t *dispatch.Ticket, r types.Reply) {
	switch o.dispatch.HandleReply(t, r, o.party()) {
	case dispatch.OutcomeProtocolMismatch:
		o.protocolMismatch()
	case dispatch.OutcomeApplied:
		o.events.PartyUpdated()
	}
}

func (o *Orchestrator) onPartyUpdateTimeout(t *dispatch.Ticket) {
	if o.dispatch.HandleTimeout(t, o.party()) != dispatch.OutcomeTimedOut {
		return
	}
	o.log.Warnw("party update timed out", "step", t.Step())
	o.cache.MarkPartyOffline(o.self)
	o.events.PartyUpdated()
}

func (o *Orchestrator) protocolMismatch() {
	o.log.Errorw("backend rejected client protocol version", "client_version", o.cfg.ClientVersion)
	o.EndMatchmaking(false)
	o.events.UserMessage(types.UserMessage{Fatal: true, Text: protocolMismatchText})
}

func (o *Orchestrator) reconcileSession() {
	party := o.party()
	now := o.now()
	id, write := o.assoc.Reconcile(session.Input{
		WantsMatchmaking: o.wants,
		Party:            party,
		Self:             o.self,
		InviteInProgress: o.invite.Active(),
	}, now)
	if write && party != nil {
		o.dispatch.SetSessionID(id, party, now)
	}
}

func (o *Orchestrator) tickPing(now time.Time) {
	tbl, ok := o.ping.Tick(now)
	if !ok {
		return
	}
	forced := o.pingForced
	o.pingForced = false
	if o.transport.Connected() && (forced || o.pingNotify.Allow(now)) {
		o.send("ping.update", tbl.Update(), nil, nil)
	}
	o.events.PingUpdated()
}
