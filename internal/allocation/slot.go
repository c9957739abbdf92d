package allocation

import (
	"fmt"
	"sort"
)

type SlotStatus string

const (
	SlotActive SlotStatus = "active"
	SlotClosed SlotStatus = "closed"
)

// Slot is a capacity-bounded time window of one provider. StartTime and
// EndTime are opaque strings compared lexically.
type Slot struct {
	ID          string
	ProviderID  string
	StartTime   string
	EndTime     string
	MaxCapacity int
	Status      SlotStatus

	tokens []*Token
}

// NewSlot builds an active, empty slot.
func NewSlot(id, providerID, startTime, endTime string, maxCapacity int) (*Slot, error) {
	if maxCapacity <= 0 {
		return nil, fmt.Errorf("%w: slot %s has max capacity %d", ErrInvalidCapacity, id, maxCapacity)
	}
	return &Slot{
		ID:          id,
		ProviderID:  providerID,
		StartTime:   startTime,
		EndTime:     endTime,
		MaxCapacity: maxCapacity,
		Status:      SlotActive,
	}, nil
}

func (s *Slot) CurrentCapacity() int {
	return len(s.tokens)
}

// AvailableCapacity is negative while an emergency overflow is in effect.
func (s *Slot) AvailableCapacity() int {
	return s.MaxCapacity - len(s.tokens)
}

func (s *Slot) CanAccommodate() bool {
	return s.Status == SlotActive && len(s.tokens) < s.MaxCapacity
}

// AddToken appends the token if there is room.
func (s *Slot) AddToken(t *Token) bool {
	if !s.CanAccommodate() {
		return false
	}
	s.tokens = append(s.tokens, t)
	return true
}

// forceAdd appends past MaxCapacity. Only the elastic emergency path uses it.
func (s *Slot) forceAdd(t *Token) {
	s.tokens = append(s.tokens, t)
}

// RemoveToken removes the token with the given id, reporting whether it was present.
func (s *Slot) RemoveToken(tokenID string) bool {
	for i, t := range s.tokens {
		if t.ID == tokenID {
			s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Slot) Reorder() {
	sort.SliceStable(s.tokens, func(i, j int) bool {
		return servesBefore(s.tokens[i], s.tokens[j])
	})
}

// Tokens returns the serving order. The returned slice is a copy; the
// tokens are shared with the engine registry.
func (s *Slot) Tokens() []*Token {
	out := make([]*Token, len(s.tokens))
	copy(out, s.tokens)
	return out
}

func (s *Slot) TimeRange() string {
	return s.StartTime + " - " + s.EndTime
}

// lowestPreemptible picks the live token with the lowest priority below the
// preemption ceiling. Ties go to the smallest token number. Completed tokens
// stay where they were served.
func (s *Slot) lowestPreemptible() *Token {
	var victim *Token
	for _, t := range s.tokens {
		if t.Status.Terminal() || t.Priority >= preemptionCeiling {
			continue
		}
		if victim == nil || t.Priority < victim.Priority ||
			(t.Priority == victim.Priority && t.TokenNumber < victim.TokenNumber) {
			victim = t
		}
	}
	return victim
}
