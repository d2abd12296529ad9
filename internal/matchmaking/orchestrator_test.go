package matchmaking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/matchmaking-client/internal/connstate"
	"github.com/DoyleJ11/matchmaking-client/internal/dispatch"
	"github.com/DoyleJ11/matchmaking-client/internal/match"
	"github.com/DoyleJ11/matchmaking-client/internal/session"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

func TestSoloMapToggleThenEndSendsNothing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.Execute(Command{Type: CmdSetMapSelected, Name: "cp_alpha", On: true}))
	assert.True(t, h.o.Criteria().MapSelected("cp_alpha"), "solo edits apply immediately")

	h.o.EndMatchmaking(false)
	h.advance(3 * time.Second)
	h.o.Tick()

	assert.Empty(t, h.tr.partyUpdates())
	assert.IsType(t, types.ExitMatchmaking{}, h.tr.last(t).req)
}

func TestSoloSearchCreatesPartyWithFullCriteria(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.BeginMatchmaking(types.ModeCasual))
	require.NoError(t, h.o.RequestWizardStep(types.StepSearching))
	h.o.Tick()

	ups := h.tr.partyUpdates()
	require.Len(t, ups, 1)
	req := ups[0].req.(types.PartyUpdate)
	assert.Equal(t, types.StepSearching, req.Step)
	require.NotNil(t, req.Criteria)
	assert.Equal(t, types.ModeCasual, req.Criteria.Mode)
}

func TestSearchingBypassesMemberDelay(t *testing.T) {
	h := newHarness(t)
	h.leaderOf(t, 4)

	require.NoError(t, h.o.RequestWizardStep(types.StepSearching))
	h.o.Tick()

	ups := h.tr.partyUpdates()
	require.Len(t, ups, 1)
	assert.Equal(t, types.StepSearching, ups[0].req.(types.PartyUpdate).Step)
	assert.Equal(t, 1, h.o.dispatch.StepChangesInFlight())
}

func TestCriteriaEditsCoalesce(t *testing.T) {
	h := newHarness(t)
	h.leaderOf(t, 3)

	require.NoError(t, h.o.Execute(Command{Type: CmdSetMapSelected, Name: "cp_alpha", On: true}))
	h.advance(time.Second)
	require.NoError(t, h.o.Execute(Command{Type: CmdSetMapSelected, Name: "pl_beta", On: true}))
	require.NoError(t, h.o.Execute(Command{Type: CmdSetLateJoin, On: true}))
	h.o.Tick()
	assert.Empty(t, h.tr.partyUpdates(), "still inside the debounce window")

	h.advance(time.Second)
	h.o.Tick()
	h.advance(5 * time.Second)
	h.o.Tick()

	ups := h.tr.partyUpdates()
	require.Len(t, ups, 1)
	c := ups[0].req.(types.PartyUpdate).Criteria
	require.NotNil(t, c)
	assert.True(t, c.MapSelected("cp_alpha"))
	assert.True(t, c.MapSelected("pl_beta"))
	assert.True(t, c.LateJoinOK)
}

func TestCommittedStepWins(t *testing.T) {
	h := newHarness(t)
	h.leaderOf(t, 2)
	require.NoError(t, h.o.RequestWizardStep(types.StepSearching))
	h.o.Tick()
	id := h.tr.last(t).id

	h.o.OnReply(id, types.Reply{Result: types.ResultOK, Step: types.StepLadder})
	assert.Equal(t, types.StepLadder, h.o.WizardStep())
	assert.Equal(t, 0, h.o.dispatch.StepChangesInFlight())

	// the same reply again is a no-op
	h.o.OnReply(id, types.Reply{Result: types.ResultOK, Step: types.StepLadder})
	assert.Equal(t, types.StepLadder, h.o.WizardStep())
	assert.Equal(t, 0, h.o.dispatch.StepChangesInFlight())
}

func TestProtocolMismatchIsFatal(t *testing.T) {
	h := newHarness(t)
	h.leaderOf(t, 1)
	require.NoError(t, h.o.RequestWizardStep(types.StepSearching))
	h.o.Tick()

	h.o.OnReply(h.tr.last(t).id, types.Reply{Result: types.ResultInvalidProtocolVersion})

	assert.False(t, h.o.WantsMatchmaking())
	require.Len(t, h.ev.messages, 1)
	assert.True(t, h.ev.messages[0].Fatal)
	assert.IsType(t, types.ExitMatchmaking{}, h.tr.last(t).req)
}

func TestUpdateTimeoutMarksPartyOffline(t *testing.T) {
	h := newHarness(t)
	p := h.leaderOf(t, 1)
	require.NoError(t, h.o.RequestWizardStep(types.StepSearching))
	h.o.Tick()
	before := h.ev.party

	h.advance(10 * time.Second)
	h.o.Tick()

	got := h.o.Party()
	require.NotNil(t, got)
	assert.True(t, got.Offline)
	assert.Greater(t, h.ev.party, before)
	assert.Equal(t, types.StepCasual, h.o.WizardStep(), "falls back to the party's step")
	assert.Equal(t, 0, h.o.dispatch.StepChangesInFlight())

	h.push(p)
	assert.False(t, h.o.Party().Offline, "a fresh push clears the mark")
}

func TestLateReplyAfterEndIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.leaderOf(t, 1)
	require.NoError(t, h.o.RequestWizardStep(types.StepSearching))
	h.o.Tick()
	id := h.tr.partyUpdates()[0].id

	h.o.EndMatchmaking(false)
	h.o.OnReply(id, types.Reply{Result: types.ResultOK, Step: types.StepSearching})

	assert.Equal(t, types.StepInvalid, h.o.WizardStep())
	assert.Equal(t, 0, h.o.dispatch.StepChangesInFlight())
}

func TestNonLeaderEditsAreRejected(t *testing.T) {
	h := newHarness(t, withLogger(zap.NewNop().Sugar()))
	require.NoError(t, h.o.BeginMatchmaking(types.ModeCasual))
	h.push(party(0xAB, friend, 2))

	err := h.o.RequestWizardStep(types.StepSearching)
	assert.ErrorIs(t, err, dispatch.ErrNotLeader)
	err = h.o.Execute(Command{Type: CmdSetMapSelected, Name: "cp_alpha", On: true})
	assert.ErrorIs(t, err, dispatch.ErrNotLeader)
	assert.Empty(t, h.tr.partyUpdates())
}

func TestNonLeaderEditPanicsInDevelopment(t *testing.T) {
	dev := zaptest.NewLogger(t, zaptest.WrapOptions(zap.Development())).Sugar()
	h := newHarness(t, withLogger(dev))
	require.NoError(t, h.o.BeginMatchmaking(types.ModeCasual))
	h.push(party(0xAB, friend, 2))

	assert.Panics(t, func() { _ = h.o.RequestWizardStep(types.StepSearching) })
}

func exits(tr *fakeTransport) int {
	n := 0
	for _, s := range tr.sent {
		if _, ok := s.req.(types.ExitMatchmaking); ok {
			n++
		}
	}
	return n
}

func TestUnwantedPartyIsLeft(t *testing.T) {
	h := newHarness(t)
	h.create(party(0xAB, self, 1))

	assert.IsType(t, types.ExitMatchmaking{}, h.tr.last(t).req)
	assert.False(t, h.o.WantsMatchmaking())
}

func TestUnwantedPartyIsLeftOnce(t *testing.T) {
	h := newHarness(t)
	p := party(0xAB, self, 1)
	h.create(p)
	for i := 0; i < 5; i++ {
		h.push(p)
	}

	assert.Equal(t, 1, exits(h.tr))
	assert.False(t, h.o.WantsMatchmaking())
}

func TestExistingPartyReturnsToSetup(t *testing.T) {
	h := newHarness(t)
	h.create(party(0xAB, friend, 3))

	assert.Zero(t, exits(h.tr))
	assert.True(t, h.o.WantsMatchmaking())
	assert.Equal(t, types.StepCasual, h.o.WizardStep())
}

func TestStalePartyWithoutMatchIsLeft(t *testing.T) {
	for _, state := range []types.PartyState{types.PartyStateInMatch, types.PartyStateAwaitingReservation} {
		t.Run(string(state), func(t *testing.T) {
			h := newHarness(t)
			p := party(0xAB, friend, 2)
			p.State = state
			h.create(p)

			assert.Equal(t, 1, exits(h.tr))
			assert.False(t, h.o.WantsMatchmaking())
		})
	}
}

func TestPartyInLiveMatchIsKept(t *testing.T) {
	h := newHarness(t)
	h.push(types.Lobby{ID: 5, State: types.LobbyStateRun, ServerID: 900, ConnectAddr: "10.0.0.9:27015"})
	h.o.OnBeginConnect(connstate.SourceMatchmaking)
	h.o.OnServerSpawn(900)
	require.True(t, h.o.HasLiveMatch())

	p := party(0xAB, friend, 2)
	p.State = types.PartyStateInMatch
	h.create(p)

	assert.Zero(t, exits(h.tr))
	assert.Len(t, h.game.disconnects, 0)
}

func TestMemberFollowsPartyStepAndCriteria(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.BeginMatchmaking(types.ModeCasual))
	p := party(0xAB, friend, 2)
	p.WizardStep = types.StepSearching
	p.Criteria.SetMapSelected("koth_gamma", true)
	h.push(p)

	assert.Equal(t, types.StepSearching, h.o.WizardStep())
	assert.True(t, h.o.Criteria().MapSelected("koth_gamma"))
}

func TestConnectingElsewhereEndsMatchmaking(t *testing.T) {
	cases := []struct {
		name      string
		allow     bool
		wantsKept bool
	}{
		{"not allowed in game", false, false},
		{"allowed in game", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, withConfig(func(c *Config) { c.AllowMatchmakingInGame = tc.allow }))
			require.NoError(t, h.o.BeginMatchmaking(types.ModeCasual))

			h.o.OnBeginConnect("community")

			assert.Equal(t, connstate.ConnectedToNonMatchmade, h.o.ConnectionState().State)
			assert.Equal(t, tc.wantsKept, h.o.WantsMatchmaking())
		})
	}
}

func TestLobbyLossWhileConnectedKeepsMatch(t *testing.T) {
	h := newHarness(t)
	lobby := types.Lobby{ID: 5, State: types.LobbyStateRun, ServerID: 900, ConnectAddr: "10.0.0.9:27015", MatchID: 31, MatchGroup: types.MatchGroupCasual12v12}
	h.push(lobby)
	h.o.OnBeginConnect(connstate.SourceMatchmaking)
	h.o.OnServerSpawn(900)
	require.Equal(t, connstate.ConnectedToMatchmade, h.o.ConnectionState().State)
	require.True(t, h.o.HasLiveMatch())

	h.destroy(lobby)

	assert.True(t, h.o.HasLiveMatch())
	assert.Equal(t, types.SteamID(900), h.o.Assignment().ServerID)
	assert.Equal(t, match.AbandonWithPenalty, h.o.AbandonStatus())

	h.o.EndMatchmaking(true)
	assert.False(t, h.o.HasLiveMatch())
	assert.Len(t, h.game.disconnects, 1)
}

func TestGameEndedSignalEndsMatch(t *testing.T) {
	h := newHarness(t)
	h.push(types.Lobby{ID: 5, State: types.LobbyStateRun, ServerID: 900, ConnectAddr: "10.0.0.9:27015"})
	h.o.OnBeginConnect(connstate.SourceMatchmaking)
	h.o.OnServerSpawn(900)
	lobbies := h.ev.lobby

	h.game.ended = true
	h.o.Tick()

	assert.False(t, h.o.HasLiveMatch())
	assert.Equal(t, lobbies+1, h.ev.lobby)
	assert.Len(t, h.o.Snapshot().ConnectHistory, 1)
}

func TestLeaderSessionIsRecordedOnParty(t *testing.T) {
	h := newHarness(t)
	h.leaderOf(t, 1)
	assert.Equal(t, []string{"create"}, h.sess.take())

	h.o.OnSessionCreated(55, true)
	assert.Equal(t, []string{fmt.Sprintf("set 55 %s=%s", session.PartyIDKey, types.GroupID(0xAB).Hex())}, h.sess.take())

	h.o.Tick()
	ups := h.tr.partyUpdates()
	require.Len(t, ups, 1)
	req := ups[0].req.(types.PartyUpdate)
	require.NotNil(t, req.SessionID)
	assert.Equal(t, types.SessionID(55), *req.SessionID)
	assert.Nil(t, req.Criteria)

	h.o.Tick()
	assert.Empty(t, h.sess.take(), "nothing left to reconcile")
	assert.Len(t, h.tr.partyUpdates(), 1)
}

func TestMemberJoinsPartySession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.BeginMatchmaking(types.ModeCasual))
	p := party(0xAB, friend, 2)
	p.SessionID = 61
	h.push(p)
	assert.Equal(t, []string{"join 61"}, h.sess.take())

	h.o.OnSessionEntered(61, true)
	h.o.OnSessionChat(61, friend, []byte("ready?"))
	h.o.OnSessionChat(99, friend, []byte("wrong room"))
	assert.Equal(t, []string{"200: ready?"}, h.ev.chat)

	require.NoError(t, h.o.SendPartyChat("yes"))
	assert.Equal(t, []string{"61: yes"}, h.sess.messages)

	h.o.EndMatchmaking(false)
	assert.Equal(t, []string{"leave 61"}, h.sess.take())
	assert.ErrorIs(t, h.o.SendPartyChat("hello?"), ErrNoSession)
}

func TestPingRefreshPublishesAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.meas.pops = []string{"ams", "sgp"}
	h.meas.direct = map[string]time.Duration{"ams": 20 * time.Millisecond}

	h.o.Tick()
	h.advance(time.Second)
	h.o.Tick()
	require.Equal(t, 1, h.ev.ping)
	up, ok := h.tr.last(t).req.(types.PingUpdate)
	require.True(t, ok)
	assert.Len(t, up.Entries, 2)

	sends := len(h.tr.sent)
	h.meas.direct["ams"] = 80 * time.Millisecond
	require.NoError(t, h.o.Execute(Command{Type: CmdRefreshPing}))
	h.advance(time.Second)
	h.o.Tick()
	h.advance(time.Second)
	h.o.Tick()
	assert.Equal(t, 2, h.ev.ping)
	require.Len(t, h.tr.sent, sends+1, "a forced refresh is reported inside the window")
	up, ok = h.tr.last(t).req.(types.PingUpdate)
	require.True(t, ok)
	assert.Equal(t, types.PingEntry{POP: "ams", RTTMs: 80, Status: "normal"}, up.Entries[0])
}

func TestPingNotSentWhileOffline(t *testing.T) {
	h := newHarness(t)
	h.tr.connected = false
	h.meas.pops = []string{"ams"}

	h.o.Tick()
	h.o.Tick()

	assert.Equal(t, 1, h.ev.ping)
	assert.Empty(t, h.tr.sent)
}

func TestCasualCriteriaRoundTrip(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.Execute(Command{Type: CmdSetMapSelected, Name: "cp_alpha", On: true}))
	require.NoError(t, h.o.Execute(Command{Type: CmdSaveCasualCriteria}))

	file := h.o.cfg.CriteriaFile
	h2 := newHarness(t, withConfig(func(c *Config) { c.CriteriaFile = file }))
	require.False(t, h2.o.Criteria().MapSelected("cp_alpha"))
	require.NoError(t, h2.o.Execute(Command{Type: CmdLoadCasualCriteria}))
	assert.True(t, h2.o.Criteria().MapSelected("cp_alpha"))
}

func TestExecuteUnknownCommand(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.o.Execute(Command{Type: "Dance"}), ErrUnsupportedCommand)
}

func TestDumpKinds(t *testing.T) {
	h := newHarness(t)
	h.leaderOf(t, 1)
	for _, kind := range []string{"party", "lobby", "invites", "ping", "history", "all"} {
		_, err := h.o.Dump(kind)
		assert.NoError(t, err, kind)
	}
	_, err := h.o.Dump("bogus")
	assert.ErrorIs(t, err, ErrUnknownDump)

	s := h.o.Snapshot()
	require.NotNil(t, s.Party)
	assert.Equal(t, types.GroupID(0xAB), s.Party.GroupID)
	assert.True(t, s.WantsMatchmaking)
}
