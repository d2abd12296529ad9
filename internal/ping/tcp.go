package ping

import (
	"context"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Target is where a point of presence can be probed: directly, or through a relay in front of it.
type Target struct {
	Direct string `yaml:"direct"`
	Relay  string `yaml:"relay"`
}

// TCPMeasurer estimates round trips by timing TCP handshakes.
type TCPMeasurer struct {
	ctx     context.Context
	targets map[string]Target
	timeout time.Duration
	log     *zap.SugaredLogger

	running atomic.Bool
	mu      sync.Mutex
	direct  map[string]time.Duration
	relayed map[string]time.Duration
}

func NewTCPMeasurer(ctx context.Context, targets map[string]Target, timeout time.Duration, log *zap.SugaredLogger) *TCPMeasurer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TCPMeasurer{
		ctx:     ctx,
		targets: targets,
		timeout: timeout,
		log:     log,
		direct:  map[string]time.Duration{},
		relayed: map[string]time.Duration{},
	}
}

func (m *TCPMeasurer) Start() {
	if m.running.Swap(true) {
		return
	}
	go m.run()
}

func (m *TCPMeasurer) run() {
	defer m.running.Store(false)

	var mu sync.Mutex
	direct := map[string]time.Duration{}
	relayed := map[string]time.Duration{}

	g, ctx := errgroup.WithContext(m.ctx)
	g.SetLimit(8)
	for pop, tgt := range m.targets {
		pop, tgt := pop, tgt
		g.Go(func() error {
			if rtt, ok := m.probe(ctx, tgt.Direct); ok {
				mu.Lock()
				direct[pop] = rtt
				mu.Unlock()
			}
			if rtt, ok := m.probe(ctx, tgt.Relay); ok {
				mu.Lock()
				relayed[pop] = rtt
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	m.direct, m.relayed = direct, relayed
	m.mu.Unlock()
	m.log.Debugw("ping measurement finished", "direct", len(direct), "relayed", len(relayed))
}

func (m *TCPMeasurer) probe(ctx context.Context, addr string) (time.Duration, bool) {
	if addr == "" {
		return 0, false
	}
	d := net.Dialer{Timeout: m.timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, false
	}
	rtt := time.Since(start)
	_ = conn.Close()
	return rtt, true
}

func (m *TCPMeasurer) InProgress() bool { return m.running.Load() }

func (m *TCPMeasurer) POPs() []string {
	pops := make([]string, 0, len(m.targets))
	for p := range m.targets {
		pops = append(pops, p)
	}
	slices.Sort(pops)
	return pops
}

func (m *TCPMeasurer) Direct(pop string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rtt, ok := m.direct[pop]
	return rtt, ok
}

func (m *TCPMeasurer) Relayed(pop string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rtt, ok := m.relayed[pop]
	return rtt, ok
}
