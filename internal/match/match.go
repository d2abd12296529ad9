package match

import (
	"time"

	"github.com/DoyleJ11/matchmaking-client/internal/connstate"
	"github.com/DoyleJ11/matchmaking-client/internal/history"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

type AbandonStatus string

const (
	AbandonSafe           AbandonStatus = "safe"
	AbandonWithoutPenalty AbandonStatus = "abandon_without_penalty"
	AbandonWithPenalty    AbandonStatus = "abandon_with_penalty"
)

// Assignment is the match the client believes it belongs to.
type Assignment struct {
	ServerID    types.SteamID    `json:"server_id"`
	ConnectAddr string           `json:"connect_addr"`
	MatchID     types.MatchID    `json:"match_id"`
	MatchGroup  types.MatchGroup `json:"match_group"`
	Ended       bool             `json:"ended"`
}

func (a Assignment) Live() bool { return a.ServerID != 0 && !a.Ended }

// GameSession is the connected game server's view of the match.
type GameSession interface {
	MatchEnded() bool
	SafeToLeave() bool
}

// Tracker decides whether there is a live match. Once the client is on the
// assigned server the server is authoritative; the lobby object may lag or
// vanish during backend restarts and is not trusted to end a match.
type Tracker struct {
	cur     Assignment
	history *history.Log
	now     func() time.Time
}

func NewTracker(h *history.Log, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{history: h, now: now}
}

func (t *Tracker) Current() Assignment { return t.cur }

func (t *Tracker) HasLiveMatch() bool { return t.cur.Live() }

// History lists recent connect addresses, newest last.
func (t *Tracker) History() []history.Entry {
	if t.history == nil {
		return nil
	}
	return t.history.Entries()
}

func (t *Tracker) connectedLive(conn connstate.Machine) bool {
	return t.cur.Live() && conn.ConnectedToMatchServer(t.cur.ServerID)
}

// Update folds the current lobby and game state into the assignment and
// reports whether anything changed.
func (t *Tracker) Update(lobby *types.Lobby, conn connstate.Machine, game GameSession) bool {
	changed := false
	if game != nil && t.connectedLive(conn) && game.MatchEnded() {
		t.cur.Ended = true
		changed = true
	}

	var server types.SteamID
	if lobby != nil && lobby.State == types.LobbyStateRun {
		server = lobby.ServerID
	}
	lobbyChanged := server != t.cur.ServerID || (lobby != nil && lobby.MatchID != t.cur.MatchID)
	if !lobbyChanged {
		return changed
	}
	// A disappearing lobby while we sit on a live server is backend flakiness.
	if lobby == nil && t.connectedLive(conn) {
		return changed
	}

	next := Assignment{ServerID: server, Ended: t.cur.Ended}
	if lobby != nil {
		next.Ended = false
		next.MatchID = lobby.MatchID
		next.MatchGroup = lobby.MatchGroup
		next.ConnectAddr = lobby.ConnectAddr
	}
	t.cur = next
	if t.history != nil && next.ConnectAddr != "" {
		t.history.Append(history.Entry{
			Addr:       next.ConnectAddr,
			ServerID:   next.ServerID,
			MatchID:    next.MatchID,
			MatchGroup: next.MatchGroup,
			At:         t.now(),
		})
	}
	return true
}

// MarkEnded records that the player walked away from the assigned match.
func (t *Tracker) MarkEnded() bool {
	if t.cur.Ended || t.cur.ServerID == 0 {
		return false
	}
	t.cur.Ended = true
	return true
}

func (t *Tracker) AbandonStatus(conn connstate.Machine, game GameSession) AbandonStatus {
	if t.cur.MatchGroup.NoPenalty() {
		return AbandonSafe
	}
	if conn.ConnectedToMatchServer(t.cur.ServerID) && game != nil {
		switch {
		case t.cur.Ended || game.MatchEnded():
			return AbandonSafe
		case game.SafeToLeave():
			return AbandonWithoutPenalty
		default:
			return AbandonWithPenalty
		}
	}
	if t.cur.Live() {
		return AbandonWithPenalty
	}
	return AbandonSafe
}
