package projection

import (
	"sync"
	"time"

	"github.com/thali-pos/api/internal/analytics"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/enum"
	"github.com/thali-pos/api/internal/model"
)

// Projection is the live dashboard state for one tenant. It holds exactly
// the latest order snapshot and the active reporting window; every
// recompute is a full filter+aggregate pass over that snapshot. There is no
// partial-aggregate cache: orders mutate retroactively through status
// transitions, so incremental state would go stale.
type Projection struct {
	clock clock.Clock

	mu        sync.RWMutex
	latest    []model.OrderRecord
	period    string
	reference time.Time

	nextSubID int
	subs      map[int]func(analytics.Stats)
}

// New creates a Projection with the all-time window selected.
func New(clk clock.Clock) *Projection {
	return &Projection{
		clock:     clk,
		period:    enum.PeriodTotal,
		reference: clk.Now(),
		subs:      map[int]func(analytics.Stats){},
	}
}

// OnSnapshot replaces the held order set and republishes. Wire this as the
// repository subscription callback; coalesced deliveries are fine because
// only final state is aggregated.
func (p *Projection) OnSnapshot(orders []model.OrderRecord) {
	p.mu.Lock()
	p.latest = orders
	p.mu.Unlock()
	p.publish()
}

// SetWindow changes the active reporting window and republishes.
func (p *Projection) SetWindow(period string, reference time.Time) {
	p.mu.Lock()
	p.period = period
	p.reference = reference
	p.mu.Unlock()
	p.publish()
}

// CurrentSnapshot recomputes the statistics from the held state.
func (p *Projection) CurrentSnapshot() analytics.Stats {
	p.mu.RLock()
	orders := p.latest
	period := p.period
	reference := p.reference
	p.mu.RUnlock()

	loc := p.clock.Location()
	filtered := analytics.FilterWindow(orders, period, reference, p.clock.Now(), loc)
	return analytics.Aggregate(filtered, loc)
}

// SnapshotFor recomputes for an explicit window without changing the
// projection's own, for one-off report queries.
func (p *Projection) SnapshotFor(period string, reference time.Time) analytics.Stats {
	p.mu.RLock()
	orders := p.latest
	p.mu.RUnlock()

	loc := p.clock.Location()
	filtered := analytics.FilterWindow(orders, period, reference, p.clock.Now(), loc)
	return analytics.Aggregate(filtered, loc)
}

// Subscribe registers fn to receive every published snapshot. The returned
// function removes the subscription and is safe to call more than once.
func (p *Projection) Subscribe(fn func(analytics.Stats)) func() {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (p *Projection) publish() {
	stats := p.CurrentSnapshot()

	p.mu.RLock()
	fns := make([]func(analytics.Stats), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(stats)
	}
}
