package connstate

import (
	"errors"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

var ErrUnsupportedSignal = errors.New("unsupported connection signal")

type State string

const (
	Disconnected            State = "disconnected"
	ConnectingToMatchmade   State = "connecting_to_matchmade"
	ConnectedToMatchmade    State = "connected_to_matchmade"
	ConnectedToNonMatchmade State = "connected_to_non_matchmade"
)

type SignalType string

const (
	SigBeginConnect SignalType = "BeginConnect"
	SigServerSpawn  SignalType = "ServerSpawn"
	SigDisconnect   SignalType = "Disconnect"
)

// SourceMatchmaking tags a connect the matchmaking system started.
const SourceMatchmaking = "matchmaking"

// IgnoredDisconnectReason is sent by co-op servers when bouncing players between waves.
const IgnoredDisconnectReason = "#TF_PVE_Disconnect"

type Signal struct {
	Type     SignalType
	Source   string
	ServerID types.SteamID
	Reason   string
}

type Machine struct {
	State    State
	ServerID types.SteamID
}

// Env is the outside context a transition may consult.
type Env struct {
	AllowMatchmakingInGame bool
	PartyJoinPending       bool
}

type Effect string

const (
	EffStateChanged   Effect = "StateChanged"
	EffEndMatchmaking Effect = "EndMatchmaking"
)

/*
	BeginConnect(matchmaking) -> ConnectingToMatchmade
	BeginConnect(other)       -> ConnectedToNonMatchmade (+ EndMatchmaking when not allowed in game)
	ServerSpawn               -> ConnectedToMatchmade if connecting, ConnectedToNonMatchmade if disconnected
	Disconnect                -> Disconnected, unless a party join is pending
*/

// Apply computes the next machine and the effects to run. Callers store the
// returned machine before running any effect.
func Apply(m Machine, sig Signal, env Env) ([]Effect, Machine, error) {
	next := m

	switch sig.Type {
	case SigBeginConnect:
		next.ServerID = 0
		if sig.Source == SourceMatchmaking {
			next.State = ConnectingToMatchmade
			return changed(m, next, nil), next, nil
		}
		next.State = ConnectedToNonMatchmade
		var effects []Effect
		if !env.AllowMatchmakingInGame {
			effects = append(effects, EffEndMatchmaking)
		}
		return changed(m, next, effects), next, nil

	case SigServerSpawn:
		switch m.State {
		case ConnectingToMatchmade:
			next.State = ConnectedToMatchmade
			next.ServerID = sig.ServerID
		case Disconnected:
			next.State = ConnectedToNonMatchmade
			next.ServerID = sig.ServerID
		}
		return changed(m, next, nil), next, nil

	case SigDisconnect:
		if env.PartyJoinPending || sig.Reason == IgnoredDisconnectReason {
			return nil, m, nil
		}
		next = Machine{State: Disconnected}
		return changed(m, next, nil), next, nil

	default:
		return nil, m, ErrUnsupportedSignal
	}
}

func changed(prev, next Machine, effects []Effect) []Effect {
	if prev != next {
		return append([]Effect{EffStateChanged}, effects...)
	}
	return effects
}

func ContainsEffect(effects []Effect, e Effect) bool {
	for _, eff := range effects {
		if eff == e {
			return true
		}
	}
	return false
}

// ConnectedToMatchServer reports whether m is connected to the given match server.
func (m Machine) ConnectedToMatchServer(server types.SteamID) bool {
	return m.State == ConnectedToMatchmade && server != 0 && m.ServerID == server
}
