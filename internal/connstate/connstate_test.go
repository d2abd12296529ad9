package connstate

import (
	"errors"
	"testing"
)

func TestApply_Transitions(t *testing.T) {
	cases := []struct {
		name        string
		from        Machine
		sig         Signal
		env         Env
		want        State
		wantEnd     bool
		wantChanged bool
	}{
		{
			name:        "matchmaking connect starts connecting",
			from:        Machine{State: Disconnected},
			sig:         Signal{Type: SigBeginConnect, Source: SourceMatchmaking},
			want:        ConnectingToMatchmade,
			wantChanged: true,
		},
		{
			name:        "other connect is non-matchmade and ends matchmaking",
			from:        Machine{State: Disconnected},
			sig:         Signal{Type: SigBeginConnect, Source: "console"},
			want:        ConnectedToNonMatchmade,
			wantEnd:     true,
			wantChanged: true,
		},
		{
			name:        "other connect allowed in game keeps matchmaking",
			from:        Machine{State: Disconnected},
			sig:         Signal{Type: SigBeginConnect, Source: "server_browser"},
			env:         Env{AllowMatchmakingInGame: true},
			want:        ConnectedToNonMatchmade,
			wantChanged: true,
		},
		{
			name:        "spawn while connecting completes matchmade",
			from:        Machine{State: ConnectingToMatchmade},
			sig:         Signal{Type: SigServerSpawn, ServerID: 42},
			want:        ConnectedToMatchmade,
			wantChanged: true,
		},
		{
			name:        "spawn while disconnected is non-matchmade",
			from:        Machine{State: Disconnected},
			sig:         Signal{Type: SigServerSpawn, ServerID: 42},
			want:        ConnectedToNonMatchmade,
			wantChanged: true,
		},
		{
			name: "spawn on non-matchmade stays put",
			from: Machine{State: ConnectedToNonMatchmade, ServerID: 7},
			sig:  Signal{Type: SigServerSpawn, ServerID: 7},
			want: ConnectedToNonMatchmade,
		},
		{
			name:        "disconnect resets",
			from:        Machine{State: ConnectedToMatchmade, ServerID: 42},
			sig:         Signal{Type: SigDisconnect, Reason: "timed out"},
			want:        Disconnected,
			wantChanged: true,
		},
		{
			name: "disconnect ignored while party join pending",
			from: Machine{State: ConnectedToMatchmade, ServerID: 42},
			sig:  Signal{Type: SigDisconnect},
			env:  Env{PartyJoinPending: true},
			want: ConnectedToMatchmade,
		},
		{
			name: "co-op wave bounce is ignored",
			from: Machine{State: ConnectedToMatchmade, ServerID: 42},
			sig:  Signal{Type: SigDisconnect, Reason: IgnoredDisconnectReason},
			want: ConnectedToMatchmade,
		},
		{
			name: "disconnect while disconnected is quiet",
			from: Machine{State: Disconnected},
			sig:  Signal{Type: SigDisconnect},
			want: Disconnected,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			effects, next, err := Apply(tc.from, tc.sig, tc.env)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if next.State != tc.want {
				t.Fatalf("want state %s, got %s", tc.want, next.State)
			}
			if got := ContainsEffect(effects, EffEndMatchmaking); got != tc.wantEnd {
				t.Fatalf("EndMatchmaking effect: want %v, got %v", tc.wantEnd, got)
			}
			if got := ContainsEffect(effects, EffStateChanged); got != tc.wantChanged {
				t.Fatalf("StateChanged effect: want %v, got %v", tc.wantChanged, got)
			}
		})
	}
}

func TestApply_ServerIdentity(t *testing.T) {
	_, m, _ := Apply(Machine{State: Disconnected}, Signal{Type: SigBeginConnect, Source: SourceMatchmaking}, Env{})
	_, m, _ = Apply(m, Signal{Type: SigServerSpawn, ServerID: 99}, Env{})

	if !m.ConnectedToMatchServer(99) {
		t.Fatalf("expected to be connected to server 99, got %+v", m)
	}
	if m.ConnectedToMatchServer(100) {
		t.Fatalf("connected to the wrong server")
	}

	_, m, _ = Apply(m, Signal{Type: SigDisconnect}, Env{})
	if m.ServerID != 0 || m.ConnectedToMatchServer(99) {
		t.Fatalf("disconnect must clear server identity, got %+v", m)
	}
}

func TestApply_Unsupported(t *testing.T) {
	from := Machine{State: ConnectedToMatchmade, ServerID: 1}
	effects, next, err := Apply(from, Signal{Type: "Teleport"}, Env{})
	if !errors.Is(err, ErrUnsupportedSignal) {
		t.Fatalf("want ErrUnsupportedSignal, got %v", err)
	}
	if next != from || effects != nil {
		t.Fatalf("unsupported signal must not change state")
	}
}
