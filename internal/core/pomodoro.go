package core

import (
	"sync"
	"time"

	"github.com/dkeye/studyroom/internal/domain"
)

// Scheduler runs f once after d. The real one is time.AfterFunc; tests drive
// a fake one by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) ScheduledFunc
}

type ScheduledFunc interface {
	Stop() bool
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) ScheduledFunc {
	return time.AfterFunc(d, f)
}

// RealScheduler is backed by the runtime timers.
func RealScheduler() Scheduler { return realScheduler{} }

type TimerState string

const (
	TimerStopped    TimerState = "stopped"
	TimerStarted    TimerState = "started"
	TimerShortBreak TimerState = "shortBreak"
	TimerLongBreak  TimerState = "longBreak"
)

type TimerEvent int

const (
	TimerEventStart TimerEvent = iota
	TimerEventShortBreak
	TimerEventLongBreak
)

func (e TimerEvent) String() string {
	switch e {
	case TimerEventStart:
		return "start"
	case TimerEventShortBreak:
		return "short_break"
	case TimerEventLongBreak:
		return "long_break"
	}
	return "unknown"
}

type TimerObserver func(TimerEvent)

// PomodoroTimer cycles focus -> short break -> focus ... and every
// longBreakInterval-th break is a long one. At most one transition is pending.
type PomodoroTimer struct {
	sched Scheduler
	now   func() time.Time

	mu              sync.Mutex
	prop            domain.TimerProperty
	state           TimerState
	shortBreakCount int
	pending         ScheduledFunc
	epoch           uint64
	eventDate       time.Time

	observers map[uint64]TimerObserver
	nextObs   uint64
}

func NewPomodoroTimer(prop domain.TimerProperty, sched Scheduler) *PomodoroTimer {
	if sched == nil {
		sched = RealScheduler()
	}
	return &PomodoroTimer{
		sched:     sched,
		now:       time.Now,
		prop:      prop,
		state:     TimerStopped,
		observers: make(map[uint64]TimerObserver),
	}
}

// AddObserver registers obs and returns the func that removes it again.
func (t *PomodoroTimer) AddObserver(obs TimerObserver) (remove func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = obs
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.observers, id)
	}
}

// Start begins a focus phase. It reports false and does nothing when a
// transition is already pending.
func (t *PomodoroTimer) Start() bool {
	t.mu.Lock()
	if t.pending != nil {
		t.mu.Unlock()
		return false
	}
	t.enterLocked(TimerStarted)
	obs := t.observersLocked()
	t.mu.Unlock()

	notify(obs, TimerEventStart)
	return true
}

// EditAndStop merges patch into the property bundle, cancels whatever was
// pending and leaves the timer stopped. It never restarts on its own.
func (t *PomodoroTimer) EditAndStop(patch domain.TimerPropertyPatch) domain.TimerProperty {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prop = t.prop.Apply(patch)
	t.shortBreakCount = 0
	t.stopLocked()
	return t.prop
}

// Dispose cancels the pending transition. Call it once when the room goes away.
func (t *PomodoroTimer) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *PomodoroTimer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *PomodoroTimer) Property() domain.TimerProperty {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prop
}

// EventDate is when the current phase began; zero while stopped.
func (t *PomodoroTimer) EventDate() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eventDate
}

// Pending reports whether a phase transition is scheduled.
func (t *PomodoroTimer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

func (t *PomodoroTimer) stopLocked() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.epoch++
	t.state = TimerStopped
	t.eventDate = time.Time{}
}

func (t *PomodoroTimer) enterLocked(state TimerState) {
	t.state = state
	t.eventDate = t.now()
	t.epoch++
	epoch := t.epoch
	t.pending = t.sched.AfterFunc(t.durationLocked(state), func() { t.onPhaseEnd(epoch) })
}

func (t *PomodoroTimer) durationLocked(state TimerState) time.Duration {
	var minutes int
	switch state {
	case TimerShortBreak:
		minutes = t.prop.ShortBreakMinutes
	case TimerLongBreak:
		minutes = t.prop.LongBreakMinutes
	default:
		minutes = t.prop.TimerLengthMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// onPhaseEnd is the deferred transition. A callback from a cancelled epoch
// (Stop lost the race with the runtime timer) is dropped.
func (t *PomodoroTimer) onPhaseEnd(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || t.pending == nil {
		t.mu.Unlock()
		return
	}
	t.pending = nil

	var ev TimerEvent
	switch t.state {
	case TimerStarted:
		if t.shortBreakCount >= t.prop.LongBreakInterval-1 {
			t.shortBreakCount = 0
			t.enterLocked(TimerLongBreak)
			ev = TimerEventLongBreak
		} else {
			t.shortBreakCount++
			t.enterLocked(TimerShortBreak)
			ev = TimerEventShortBreak
		}
	default:
		t.enterLocked(TimerStarted)
		ev = TimerEventStart
	}
	obs := t.observersLocked()
	t.mu.Unlock()

	notify(obs, ev)
}

func (t *PomodoroTimer) observersLocked() []TimerObserver {
	out := make([]TimerObserver, 0, len(t.observers))
	for _, o := range t.observers {
		out = append(out, o)
	}
	return out
}

func notify(obs []TimerObserver, ev TimerEvent) {
	for _, o := range obs {
		o(ev)
	}
}
