package ping

import (
	"maps"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

type Status string

const (
	StatusNormal           Status = "normal"
	StatusFallbackToDCPing Status = "fallback_to_dc_ping"
	StatusUnreachable      Status = "unreachable"
)

const DefaultInterval = 180 * time.Second

type Entry struct {
	RTT    time.Duration `json:"rtt"`
	Status Status        `json:"status"`
}

// Table maps a datacenter (point of presence) name to its round-trip estimate.
type Table map[string]Entry

func (t Table) Clone() Table { return maps.Clone(t) }

// Update is the backend notification for t, sorted by POP name.
func (t Table) Update() types.PingUpdate {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	slices.Sort(names)
	up := types.PingUpdate{Entries: make([]types.PingEntry, 0, len(names))}
	for _, n := range names {
		e := t[n]
		up.Entries = append(up.Entries, types.PingEntry{
			POP:    n,
			RTTMs:  uint32(e.RTT / time.Millisecond),
			Status: string(e.Status),
		})
	}
	return up
}

// Measurer is the underlying round-trip measurement subsystem.
type Measurer interface {
	Start()
	InProgress() bool
	POPs() []string
	Direct(pop string) (time.Duration, bool)
	Relayed(pop string) (time.Duration, bool)
}

// Scheduler refreshes the ping table on an interval. A refresh either
// replaces the whole table or leaves the previous one in place.
type Scheduler struct {
	m         Measurer
	interval  time.Duration
	overrides map[string]time.Duration

	last    time.Time
	pending bool
	started bool
	table   Table
}

func NewScheduler(m Measurer, interval time.Duration, overrides map[string]time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{m: m, interval: interval, overrides: overrides, table: Table{}}
}

// Tick advances the refresh cycle. It returns the new table when one was published.
func (s *Scheduler) Tick(now time.Time) (Table, bool) {
	if !s.pending {
		if !s.last.IsZero() && now.Sub(s.last) < s.interval {
			return nil, false
		}
		s.pending = true
		s.started = false
	}
	if !s.started {
		s.m.Start()
		s.started = true
		return nil, false
	}
	if s.m.InProgress() {
		return nil, false
	}

	next, ok := s.build()
	if !ok {
		return nil, false
	}
	s.table = next
	s.last = now
	s.pending = false
	return next.Clone(), true
}

func (s *Scheduler) build() (Table, bool) {
	next := Table{}
	for _, pop := range s.m.POPs() {
		if rtt, ok := s.overrides[pop]; ok {
			next[pop] = Entry{RTT: rtt, Status: StatusNormal}
			continue
		}
		if rtt, ok := s.m.Direct(pop); ok {
			next[pop] = Entry{RTT: rtt, Status: StatusNormal}
		} else if rtt, ok := s.m.Relayed(pop); ok {
			next[pop] = Entry{RTT: rtt, Status: StatusFallbackToDCPing}
		} else {
			next[pop] = Entry{Status: StatusUnreachable}
		}
	}
	// measurement restarted underneath us
	if s.m.InProgress() {
		return nil, false
	}
	return next, true
}

// Invalidate forgets when the last refresh happened and starts a new one on the next tick.
func (s *Scheduler) Invalidate() {
	s.last = time.Time{}
	s.pending = true
	s.started = false
}

func (s *Scheduler) Table() Table           { return s.table.Clone() }
func (s *Scheduler) LastRefresh() time.Time { return s.last }
func (s *Scheduler) Pending() bool          { return s.pending }

// Notifier throttles best-effort ping notifications to the backend.
type Notifier struct {
	limiter *rate.Limiter
}

func NewNotifier(every time.Duration, burst int) *Notifier {
	return &Notifier{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

func (n *Notifier) Allow(now time.Time) bool {
	return n.limiter.AllowN(now, 1)
}
