package history

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

// Entry is one game server the client was assigned to, kept for reconnect tooling.
type Entry struct {
	Addr       string
	ServerID   types.SteamID
	MatchID    types.MatchID
	MatchGroup types.MatchGroup
	At         time.Time
}

// Log keeps the most recent entries in memory and forwards each one to an
// optional persistent sink without blocking the caller.
type Log struct {
	entries []Entry
	max     int
	sink    chan Entry
	log     *zap.SugaredLogger
}

func NewLog(max int, log *zap.SugaredLogger) *Log {
	if max <= 0 {
		max = 16
	}
	return &Log{
		max:  max,
		sink: make(chan Entry, max),
		log:  log,
	}
}

func (l *Log) Append(e Entry) {
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = l.entries[over:]
	}
	select {
	case l.sink <- e:
	default:
		// Store is slow or absent; the in-memory copy is still there.
		l.log.Debugw("connect history sink full, dropping", "addr", e.Addr)
	}
}

// Preload restores entries read back from the store, oldest first. They are
// not forwarded to the sink again.
func (l *Log) Preload(es []Entry) {
	l.entries = append(l.entries, es...)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = l.entries[over:]
	}
}

// Entries returns a copy, newest last.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Sink() <-chan Entry { return l.sink }
