package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/pipeline-console/pkg/icron"
	"github.com/MimeLyc/pipeline-console/pkg/log"
)

const (
	DefaultSchedule  = "@every 5s"
	DefaultNoticeTTL = 7 * time.Second

	checkTimeout = 30 * time.Second
)

type EventKind string

const (
	EventNewSource     EventKind = "new-source"
	EventNewGeneration EventKind = "new-generation"
)

// Event is a growth of one watched collection between two checks.
type Event struct {
	Kind  EventKind `json:"kind"`
	Delta int       `json:"delta"`
	At    time.Time `json:"at"`
}

// Counter reports the current size of the watched collections.
type Counter interface {
	CountVideos(ctx context.Context) (int, error)
	CountGenerations(ctx context.Context) (int, error)
}

// Status is what the activity bar shows.
type Status struct {
	Schedule     string             `json:"schedule"`
	Running      bool               `json:"running"`
	Polling      bool               `json:"polling"`
	LastCheck    time.Time          `json:"last_check"`
	LastError    string             `json:"last_error,omitempty"`
	SourceVideos *int               `json:"source_videos,omitempty"`
	Generations  *int               `json:"generations,omitempty"`
	Trigger      *icron.TriggerInfo `json:"trigger,omitempty"`
	Events       []Event            `json:"events"`
}

// Poller periodically counts source videos and generations and raises a
// short-lived event whenever a count grows. It is started and stopped
// explicitly by its owner.
type Poller struct {
	counter   Counter
	noticeTTL time.Duration
	now       func() time.Time

	lifecycle sync.Mutex
	cron      *cron.Cron
	schedule  string

	mu          sync.RWMutex
	running     bool
	polling     bool
	lastCheck   time.Time
	lastErr     string
	sourceCount *int
	genCount    *int
	events      []Event
}

type Option func(*Poller)

func WithSchedule(expr string) Option {
	return func(p *Poller) {
		if expr != "" {
			p.schedule = expr
		}
	}
}

func WithNoticeTTL(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.noticeTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPoller(counter Counter, opts ...Option) *Poller {
	p := &Poller{
		counter:   counter,
		schedule:  DefaultSchedule,
		noticeTTL: DefaultNoticeTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs one check right away and then schedules the rest. Calling Start
// on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.cron != nil {
		return nil
	}
	c, err := p.newCron(p.schedule)
	if err != nil {
		return err
	}

	p.Check(ctx)

	c.Start()
	p.cron = c
	p.setRunning(true)
	log.Info("Activity poller started (%s)", p.schedule)
	return nil
}

// Stop cancels the schedule and waits for an in-flight check. Safe to call
// more than once.
func (p *Poller) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.cron = nil
	p.setRunning(false)
	log.Info("Activity poller stopped")
}

// SetSchedule changes the polling schedule, rescheduling a running poller.
func (p *Poller) SetSchedule(expr string) error {
	if _, err := icron.Parse(expr); err != nil {
		return err
	}

	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if expr == p.schedule {
		return nil
	}
	if p.cron != nil {
		c, err := p.newCron(expr)
		if err != nil {
			return err
		}
		<-p.cron.Stop().Done()
		c.Start()
		p.cron = c
	}
	p.schedule = expr
	log.Info("Activity poller schedule set to %s", expr)
	return nil
}

func (p *Poller) newCron(expr string) (*cron.Cron, error) {
	schedule, err := icron.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("poll schedule: %w", err)
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		p.Check(ctx)
	}))
	return c, nil
}

// Check counts both collections once. A failed count is logged and keeps the
// previous observation, so growth is still detected on the next success.
func (p *Poller) Check(ctx context.Context) {
	p.mu.Lock()
	p.polling = true
	p.mu.Unlock()

	sources, srcErr := p.counter.CountVideos(ctx)
	gens, genErr := p.counter.CountGenerations(ctx)
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.polling = false
	p.lastCheck = now
	p.lastErr = ""

	if srcErr != nil {
		log.Warn("Activity check: count source videos: %v", srcErr)
		p.lastErr = srcErr.Error()
	} else {
		p.observeLocked(EventNewSource, &p.sourceCount, sources, now)
	}
	if genErr != nil {
		log.Warn("Activity check: count generations: %v", genErr)
		p.lastErr = genErr.Error()
	} else {
		p.observeLocked(EventNewGeneration, &p.genCount, gens, now)
	}
	p.pruneLocked(now)
}

func (p *Poller) observeLocked(kind EventKind, prev **int, current int, now time.Time) {
	if *prev != nil && current > **prev {
		ev := Event{Kind: kind, Delta: current - **prev, At: now}
		p.events = append(p.events, ev)
		log.Info("Activity: %s (+%d)", kind, ev.Delta)
	}
	n := current
	*prev = &n
}

func (p *Poller) pruneLocked(now time.Time) {
	kept := p.events[:0]
	for _, ev := range p.events {
		if p.activeAt(ev, now) {
			kept = append(kept, ev)
		}
	}
	p.events = kept
}

func (p *Poller) activeAt(ev Event, now time.Time) bool {
	return now.Before(ev.At.Add(p.noticeTTL))
}

// Active returns the events still visible at now, oldest first.
func (p *Poller) Active(now time.Time) []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ret := make([]Event, 0, len(p.events))
	for _, ev := range p.events {
		if p.activeAt(ev, now) {
			ret = append(ret, ev)
		}
	}
	return ret
}

func (p *Poller) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Poller) setRunning(v bool) {
	p.mu.Lock()
	p.running = v
	p.mu.Unlock()
}

func (p *Poller) Status(now time.Time) Status {
	p.lifecycle.Lock()
	schedule := p.schedule
	p.lifecycle.Unlock()

	p.mu.RLock()
	st := Status{
		Schedule:     schedule,
		Running:      p.running,
		Polling:      p.polling,
		LastCheck:    p.lastCheck,
		LastError:    p.lastErr,
		SourceVideos: copyInt(p.sourceCount),
		Generations:  copyInt(p.genCount),
	}
	p.mu.RUnlock()

	st.Events = p.Active(now)
	if st.Running {
		if info, err := icron.GetTriggerInfo(schedule, now); err == nil {
			st.Trigger = info
		}
	}
	return st
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// cronLogger routes robfig/cron diagnostics to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
