package journal

import (
	"context"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
)

const (
	EventTokenAllocated   = "TOKEN_ALLOCATED"
	EventTokenReallocated = "TOKEN_REALLOCATED"
	EventTokenCancelled   = "TOKEN_CANCELLED"
	EventTokenNoShow      = "TOKEN_NOSHOW"
	EventTokenCompleted   = "TOKEN_COMPLETED"
	EventTokenEmergency   = "TOKEN_EMERGENCY"
	EventSlotClosed       = "SLOT_CLOSED"
)

// Event is one audit record. Events are written, never read back by the engine.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	TokenID   string         `json:"token_id,omitempty"`
	SlotID    string         `json:"slot_id,omitempty"`
	DoctorID  string         `json:"doctor_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Sink stores or forwards events.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev Event) error
}

// Journal fans events out to every configured sink. A failing sink is
// logged and does not affect the others or the caller.
type Journal struct {
	sinks []Sink
	log   zerolog.Logger
	now   func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

func New(log zerolog.Logger, sinks ...Sink) *Journal {
	return &Journal{
		sinks:   sinks,
		log:     log,
		now:     time.Now,
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (j *Journal) Enabled() bool {
	return j != nil && len(j.sinks) > 0
}

// Token records a token event.
func (j *Journal) Token(ctx context.Context, eventType string, t allocation.Token, payload map[string]any) {
	j.Record(ctx, Event{
		Type:     eventType,
		TokenID:  t.ID,
		SlotID:   t.SlotID,
		DoctorID: t.ProviderID,
		Payload:  payload,
	})
}

func (j *Journal) Record(ctx context.Context, ev Event) {
	if !j.Enabled() {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = j.now().UTC()
	}
	if ev.ID == "" {
		ev.ID = j.newID(ev.CreatedAt)
	}

	for _, s := range j.sinks {
		if err := s.Write(ctx, ev); err != nil {
			j.log.Error().Err(err).
				Str("sink", s.Name()).
				Str("event_type", ev.Type).
				Str("token_id", ev.TokenID).
				Msg("failed to write journal event")
		}
	}
}

func (j *Journal) newID(ts time.Time) string {
	j.entropyMu.Lock()
	defer j.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), j.entropy).String()
}
