package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrAlreadyStarted is returned by Start when the pool has been started before.
var ErrAlreadyStarted = errors.New("runner: pool already started")

// stageTick is how often the stage controller re-evaluates the VU target.
const stageTick = 100 * time.Millisecond

// Result captures execution summary.
type Result struct {
	Iterations   int64
	VirtualUsers int // workers started over the whole run
	Duration     time.Duration
}

type vuHandle struct {
	id     int
	cancel context.CancelFunc
}

// Pool runs a set of Workers that share a Clock, a Sink and an optional
// rate limiter.
type Pool struct {
	opt     Options
	plan    *stagePlan
	limiter *rate.Limiter
	source  clockwork.Clock
	logger  *zap.Logger

	mu         sync.Mutex
	started    bool
	hard       context.Context
	hardCancel context.CancelFunc
	soft       context.Context
	softCancel context.CancelFunc
	vus        []vuHandle
	nextID     int
	startedAt  time.Time
	duration   time.Duration

	wg         sync.WaitGroup
	active     atomic.Int32
	spawned    atomic.Int32
	iterations atomic.Int64
	done       chan struct{}
}

func New(opt Options) *Pool {
	opt.normalize()
	source := clockwork.NewRealClock()
	if opt.Clock != nil {
		source = opt.Clock.Source()
	}
	return &Pool{
		opt:     opt,
		plan:    compileStagePlan(opt.VirtualUsers, opt.Stages),
		limiter: opt.LimiterFactory(opt.RatePerSecond),
		source:  source,
		logger:  opt.Logger,
		done:    make(chan struct{}),
	}
}

// Start starts the clock and spawns the initial workers. It does not block.
// Cancelling ctx has the same effect as Stop.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	if p.opt.Requester == nil {
		return errors.New("runner: requester is required")
	}
	p.started = true

	p.hard, p.hardCancel = context.WithCancel(ctx)
	p.soft, p.softCancel = context.WithCancel(p.hard)
	p.startedAt = p.source.Now()
	if p.opt.Clock != nil {
		p.opt.Clock.Start()
	}

	if p.plan == nil {
		p.scaleLocked(p.opt.VirtualUsers)
	} else {
		p.logger.Debug("following stages",
			zap.Int("peak_virtual_users", p.plan.peak),
			zap.Duration("length", p.plan.totalDuration()),
		)
		initial, _ := p.plan.vusAt(0)
		p.scaleLocked(initial)
		p.wg.Add(1)
		go p.followStages()
	}

	go func() {
		p.wg.Wait()
		p.mu.Lock()
		p.duration = p.source.Since(p.startedAt)
		p.mu.Unlock()
		p.hardCancel()
		close(p.done)
	}()
	return nil
}

// followStages adjusts the VU count on every tick until the plan ends.
func (p *Pool) followStages() {
	defer p.wg.Done()

	ticker := p.source.NewTicker(stageTick)
	defer ticker.Stop()

	for {
		select {
		case <-p.soft.Done():
			return
		case <-ticker.Chan():
			target, ok := p.plan.vusAt(p.source.Since(p.startedAt))
			p.mu.Lock()
			p.scaleLocked(target)
			p.mu.Unlock()
			if !ok {
				return
			}
		}
	}
}

// scaleLocked spawns or retires workers until target are assigned.
// Retired workers finish their in-flight request first.
func (p *Pool) scaleLocked(target int) {
	if p.soft.Err() != nil {
		return
	}
	if target < 0 {
		target = 0
	}
	before := len(p.vus)
	for len(p.vus) < target {
		p.spawnLocked()
	}
	for len(p.vus) > target {
		last := p.vus[len(p.vus)-1]
		p.vus = p.vus[:len(p.vus)-1]
		last.cancel()
	}
	if before != len(p.vus) {
		p.logger.Debug("scaled virtual users", zap.Int("from", before), zap.Int("to", len(p.vus)))
	}
}

func (p *Pool) spawnLocked() {
	id := p.nextID
	p.nextID++

	stop, cancel := context.WithCancel(p.soft)
	p.vus = append(p.vus, vuHandle{id: id, cancel: cancel})
	w := NewWorker(id, p.opt, p.limiter)

	p.wg.Add(1)
	p.active.Add(1)
	p.spawned.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.active.Add(-1)
		defer cancel()
		p.iterations.Add(int64(w.Run(p.hard, stop)))
	}()
}

// Shutdown stops new iterations, waits up to grace for in-flight requests to
// finish, then cancels whatever is still running. It returns once every
// worker has exited.
func (p *Pool) Shutdown(grace time.Duration) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	softCancel, hardCancel := p.softCancel, p.hardCancel
	p.mu.Unlock()

	softCancel()
	if grace > 0 {
		timer := p.source.NewTimer(grace)
		select {
		case <-p.done:
		case <-timer.Chan():
			p.logger.Debug("graceful stop expired, cancelling in-flight requests", zap.Int("active", p.Active()))
		}
		timer.Stop()
	}
	hardCancel()
	<-p.done
}

// Stop cancels everything at once and waits for the workers to exit.
func (p *Pool) Stop() {
	p.Shutdown(0)
}

// Wait blocks until every worker has exited. It returns at once if the pool
// was never started.
func (p *Pool) Wait() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
}

// Done is closed once the pool was started and every worker has exited.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Active returns the number of workers currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Result summarises the run so far.
func (p *Pool) Result() Result {
	p.mu.Lock()
	d := p.duration
	if d == 0 && p.started {
		d = p.source.Since(p.startedAt)
	}
	p.mu.Unlock()
	return Result{
		Iterations:   p.iterations.Load(),
		VirtualUsers: int(p.spawned.Load()),
		Duration:     d,
	}
}
