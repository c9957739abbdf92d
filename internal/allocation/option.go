package allocation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OverflowPolicy decides what an emergency insertion does when the target
// slot is full and nobody can be moved out of it.
type OverflowPolicy string

const (
	// OverflowElastic inserts anyway, pushing the slot past MaxCapacity.
	OverflowElastic OverflowPolicy = "elastic"
	// OverflowReject fails the insertion with ErrCapacityExhausted.
	OverflowReject OverflowPolicy = "reject"
)

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case OverflowElastic, OverflowReject:
		return p, nil
	}
	return "", fmt.Errorf("unknown overflow policy %q", s)
}

// Recorder observes engine outcomes. Calls happen inside the engine's
// critical section and must not block.
type Recorder interface {
	TokenAllocated(source Source)
	TokenReleased(status TokenStatus)
	TokenPreempted()
	TokenPromoted()
	EmergencyOverflow()
}

type nopRecorder struct{}

func (nopRecorder) TokenAllocated(Source) {}
func (nopRecorder) TokenReleased(TokenStatus) {}
func (nopRecorder) TokenPreempted() {}
func (nopRecorder) TokenPromoted() {}
func (nopRecorder) EmergencyOverflow() {}

type Option func(*Engine)

// WithClock replaces time.Now, used for timestamps and current-slot lookup.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(e *Engine) {
		e.overflow = p
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

func defaultEngine() *Engine {
	return &Engine{
		providers: make(map[string]*Provider),
		slots:     make(map[string]*Slot),
		tokens:    make(map[string]*Token),
		now:       time.Now,
		newID:     uuid.NewString,
		overflow:  OverflowElastic,
		log:       zerolog.Nop(),
		rec:       nopRecorder{},
	}
}
