package replica

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

const me types.SteamID = 76561198000000001

func TestView_EmptyCacheHasNoObjects(t *testing.T) {
	v := NewView(NewCache(), me)

	p, err := v.Party()
	require.NoError(t, err)
	assert.Nil(t, p)

	l, err := v.Lobby()
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestCache_Apply(t *testing.T) {
	party := types.Party{GroupID: 7, LeaderID: me, WizardStep: types.StepCasual}
	lobby := types.Lobby{ID: 3, State: types.LobbyStateRun, ServerID: 90}

	cases := []struct {
		name      string
		events    []Event
		wantParty bool
		wantLobby bool
	}{
		{
			name:      "created party is visible",
			events:    []Event{{Type: EvtCreated, Owner: me, Object: party}},
			wantParty: true,
		},
		{
			name: "destroyed party disappears",
			events: []Event{
				{Type: EvtCreated, Owner: me, Object: party},
				{Type: EvtDestroyed, Owner: me, Object: party},
			},
		},
		{
			name: "party and lobby coexist",
			events: []Event{
				{Type: EvtCreated, Owner: me, Object: party},
				{Type: EvtCreated, Owner: me, Object: lobby},
			},
			wantParty: true,
			wantLobby: true,
		},
		{
			name:   "other owners are not visible",
			events: []Event{{Type: EvtCreated, Owner: me + 1, Object: party}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCache()
			for _, ev := range tc.events {
				require.NoError(t, c.Apply(ev))
			}
			v := NewView(c, me)

			p, err := v.Party()
			require.NoError(t, err)
			assert.Equal(t, tc.wantParty, p != nil)

			l, err := v.Lobby()
			require.NoError(t, err)
			assert.Equal(t, tc.wantLobby, l != nil)
		})
	}
}

func TestView_TwoPartiesIsAnError(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Apply(Event{Type: EvtCreated, Owner: me, Object: types.Party{GroupID: 1}}))
	require.NoError(t, c.Apply(Event{Type: EvtCreated, Owner: me, Object: types.Party{GroupID: 2}}))

	p, err := NewView(c, me).Party()
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrMultipleObjects))
}

func TestCache_OfflineClearedByFreshUpdate(t *testing.T) {
	c := NewCache()
	v := NewView(c, me)
	party := types.Party{GroupID: 1, LeaderID: me}
	require.NoError(t, c.Apply(Event{Type: EvtCreated, Owner: me, Object: party}))

	require.True(t, c.MarkPartyOffline(me))
	p, _ := v.Party()
	require.NotNil(t, p)
	assert.True(t, p.Offline)

	require.NoError(t, c.Apply(Event{Type: EvtUpdated, Owner: me, Object: party}))
	p, _ = v.Party()
	assert.False(t, p.Offline)
}

func TestView_PartyIsACopy(t *testing.T) {
	c := NewCache()
	party := types.Party{GroupID: 1, Members: []types.Member{{ID: me}}}
	require.NoError(t, c.Apply(Event{Type: EvtCreated, Owner: me, Object: party}))

	p, _ := NewView(c, me).Party()
	p.Members[0].ID = 0
	p.WizardStep = types.StepSearching

	again, _ := NewView(c, me).Party()
	assert.Equal(t, me, again.Members[0].ID)
	assert.Equal(t, types.StepInvalid, again.WizardStep)
}

func TestCache_UnknownEventType(t *testing.T) {
	err := NewCache().Apply(Event{Type: "moved", Owner: me, Object: types.Lobby{ID: 1}})
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}
