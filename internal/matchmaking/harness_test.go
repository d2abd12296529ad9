package matchmaking

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/matchmaking-client/internal/criteria"
	"github.com/DoyleJ11/matchmaking-client/internal/replica"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

const (
	self   types.SteamID = 100
	friend types.SteamID = 200
)

var t0 = time.Unix(1_700_000_000, 0)

type sent struct {
	id  string
	req types.Request
}

type fakeTransport struct {
	connected bool
	sent      []sent
}

func (f *fakeTransport) Send(id string, req types.Request) error {
	f.sent = append(f.sent, sent{id: id, req: req})
	return nil
}

func (f *fakeTransport) Connected() bool { return f.connected }

func (f *fakeTransport) last(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, f.sent, "nothing was sent")
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) partyUpdates() []sent {
	var out []sent
	for _, s := range f.sent {
		if _, ok := s.req.(types.PartyUpdate); ok {
			out = append(out, s)
		}
	}
	return out
}

type fakeGame struct {
	ended       bool
	safe        bool
	disconnects []string
}

func (g *fakeGame) MatchEnded() bool         { return g.ended }
func (g *fakeGame) SafeToLeave() bool        { return g.safe }
func (g *fakeGame) Disconnect(reason string) { g.disconnects = append(g.disconnects, reason) }

type recorder struct {
	party, lobby, ping int
	messages           []types.UserMessage
	chat               []string
}

func (r *recorder) PartyUpdated()                   { r.party++ }
func (r *recorder) LobbyUpdated()                   { r.lobby++ }
func (r *recorder) PingUpdated()                    { r.ping++ }
func (r *recorder) UserMessage(m types.UserMessage) { r.messages = append(r.messages, m) }
func (r *recorder) PartyChat(from types.SteamID, text string) {
	r.chat = append(r.chat, fmt.Sprintf("%d: %s", from, text))
}

type fakeSessions struct {
	calls    []string
	metadata map[types.SessionID]map[string]string
	messages []string
}

func (f *fakeSessions) Create() error {
	f.calls = append(f.calls, "create")
	return nil
}

func (f *fakeSessions) Join(id types.SessionID) error {
	f.calls = append(f.calls, fmt.Sprintf("join %d", id))
	return nil
}

func (f *fakeSessions) Leave(id types.SessionID) {
	f.calls = append(f.calls, fmt.Sprintf("leave %d", id))
}

func (f *fakeSessions) RequestMetadata(types.SessionID) error { return nil }

func (f *fakeSessions) Metadata(id types.SessionID, key string) string {
	return f.metadata[id][key]
}

func (f *fakeSessions) SetMetadata(id types.SessionID, key, value string) error {
	f.calls = append(f.calls, fmt.Sprintf("set %d %s=%s", id, key, value))
	if f.metadata[id] == nil {
		f.metadata[id] = map[string]string{}
	}
	f.metadata[id][key] = value
	return nil
}

func (f *fakeSessions) SendMessage(id types.SessionID, payload []byte) error {
	f.messages = append(f.messages, fmt.Sprintf("%d: %s", id, payload))
	return nil
}

func (f *fakeSessions) take() []string {
	c := f.calls
	f.calls = nil
	return c
}

type fakeMeasurer struct {
	pops   []string
	direct map[string]time.Duration
}

func (m *fakeMeasurer) Start()           {}
func (m *fakeMeasurer) InProgress() bool { return false }
func (m *fakeMeasurer) POPs() []string   { return m.pops }
func (m *fakeMeasurer) Direct(pop string) (time.Duration, bool) {
	rtt, ok := m.direct[pop]
	return rtt, ok
}
func (m *fakeMeasurer) Relayed(string) (time.Duration, bool) { return 0, false }

type harness struct {
	o    *Orchestrator
	tr   *fakeTransport
	game *fakeGame
	ev   *recorder
	sess *fakeSessions
	meas *fakeMeasurer
	now  time.Time
}

type option func(*Config, *Deps)

func withLogger(log *zap.SugaredLogger) option {
	return func(_ *Config, d *Deps) { d.Log = log }
}

func withConfig(f func(*Config)) option {
	return func(c *Config, _ *Deps) { f(c) }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		tr:   &fakeTransport{connected: true},
		game: &fakeGame{},
		ev:   &recorder{},
		sess: &fakeSessions{metadata: map[types.SessionID]map[string]string{}},
		meas: &fakeMeasurer{},
		now:  t0,
	}
	cfg := Config{
		Self:             self,
		ClientVersion:    7,
		RequestTimeout:   10 * time.Second,
		PartyUpdateDelay: 2 * time.Second,
		InviteTimeout:    30 * time.Second,
		SessionTimeout:   10 * time.Second,
		PingInterval:     time.Minute,
		CriteriaFile:     filepath.Join(t.TempDir(), "casual.yaml"),
		Initial:          criteria.Defaults(),
	}
	deps := Deps{
		Transport: h.tr,
		Sessions:  h.sess,
		Game:      h.game,
		Events:    h.ev,
		Measurer:  h.meas,
		Log:       zaptest.NewLogger(t).Sugar(),
		Now:       func() time.Time { return h.now },
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	h.o = New(cfg, deps)
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// create delivers obj as newly subscribed, the way the backend announces an
// object it had not sent before.
func (h *harness) create(obj types.Object) {
	h.o.OnReplication(replica.Event{Type: replica.EvtCreated, Owner: self, Object: obj})
}

func (h *harness) push(obj types.Object) {
	h.o.OnReplication(replica.Event{Type: replica.EvtUpdated, Owner: self, Object: obj})
}

func (h *harness) destroy(obj types.Object) {
	h.o.OnReplication(replica.Event{Type: replica.EvtDestroyed, Owner: self, Object: obj})
}

func party(group types.GroupID, leader types.SteamID, size int) types.Party {
	p := types.Party{
		GroupID:    group,
		LeaderID:   leader,
		State:      types.PartyStateUI,
		WizardStep: types.StepCasual,
		Criteria:   criteria.Defaults(),
	}
	p.Members = append(p.Members, types.Member{ID: self})
	if leader != self {
		p.Members = append(p.Members, types.Member{ID: leader})
	}
	for i := len(p.Members); i < size; i++ {
		p.Members = append(p.Members, types.Member{ID: types.SteamID(1000 + i)})
	}
	return p
}

// leaderOf puts the harness into casual setup as leader of a party of size.
func (h *harness) leaderOf(t *testing.T, size int) types.Party {
	t.Helper()
	require.NoError(t, h.o.BeginMatchmaking(types.ModeCasual))
	p := party(0xAB, self, size)
	h.push(p)
	require.True(t, h.o.WantsMatchmaking())
	return p
}
