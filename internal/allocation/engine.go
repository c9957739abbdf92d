package allocation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Engine owns every provider, slot and token and runs all allocation
// algorithms. Mutations are serialized by one exclusive lock; projections
// share a read lock.
type Engine struct {
	mu sync.RWMutex

	providers     map[string]*Provider
	providerOrder []string
	slots         map[string]*Slot
	tokens        map[string]*Token
	seq           int64

	now      func() time.Time
	newID    func() string
	overflow OverflowPolicy
	log      zerolog.Logger
	rec      Recorder
}

func NewEngine(opts ...Option) *Engine {
	e := defaultEngine()
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterProvider adds a provider together with the slots it already holds.
func (e *Engine) RegisterProvider(p *Provider) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.providers[p.ID]; ok {
		return fmt.Errorf("%w: doctor %s", ErrDuplicateID, p.ID)
	}
	seen := make(map[string]bool, len(p.Slots))
	for _, s := range p.Slots {
		if err := e.checkNewSlot(s); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: slot %s", ErrDuplicateID, s.ID)
		}
		seen[s.ID] = true
	}

	e.providers[p.ID] = p
	e.providerOrder = append(e.providerOrder, p.ID)
	for _, s := range p.Slots {
		s.ProviderID = p.ID
		e.slots[s.ID] = s
	}
	return nil
}

// AddSlot appends a fully formed slot to a registered provider.
func (e *Engine) AddSlot(providerID string, s *Slot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.providers[providerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	if err := e.checkNewSlot(s); err != nil {
		return err
	}
	s.ProviderID = providerID
	p.AddSlot(s)
	e.slots[s.ID] = s
	return nil
}

func (e *Engine) checkNewSlot(s *Slot) error {
	if s.MaxCapacity <= 0 {
		return fmt.Errorf("%w: slot %s has max capacity %d", ErrInvalidCapacity, s.ID, s.MaxCapacity)
	}
	if _, ok := e.slots[s.ID]; ok {
		return fmt.Errorf("%w: slot %s", ErrDuplicateID, s.ID)
	}
	return nil
}

// AllocateToken books a patient into the preferred slot when it has room,
// otherwise into the provider's least loaded slot.
func (e *Engine) AllocateToken(patientID, patientName, providerID, preferredSlotID string, source Source) (Token, error) {
	priority, ok := source.Priority()
	if !ok {
		return Token{}, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.providers[providerID]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}

	var target *Slot
	if preferredSlotID != "" {
		// The preferred slot must belong to this provider.
		if s := p.FindSlot(preferredSlotID); s != nil && s.CanAccommodate() {
			target = s
		}
	}
	if target == nil {
		target = p.bestAvailableSlot()
	}
	if target == nil {
		return Token{}, fmt.Errorf("%w: doctor %s", ErrNoAvailableSlot, providerID)
	}

	t := e.newToken(patientID, patientName, p.ID, target.ID, source, priority)
	target.AddToken(t)
	target.Reorder()
	e.tokens[t.ID] = t
	e.rec.TokenAllocated(source)

	return *t, nil
}

func (e *Engine) newToken(patientID, patientName, providerID, slotID string, source Source, priority int) *Token {
	e.seq++
	now := e.now()
	return &Token{
		ID:          e.newID(),
		PatientID:   patientID,
		PatientName: patientName,
		ProviderID:  providerID,
		SlotID:      slotID,
		Source:      source,
		TokenNumber: e.seq,
		Priority:    priority,
		Status:      StatusAllocated,
		AllocatedAt: now,
		UpdatedAt:   now,
	}
}

// ReallocateToken moves an allocated or waiting token into another slot of
// the same doctor.
func (e *Engine) ReallocateToken(tokenID, newSlotID string) (Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.reallocate(tokenID, newSlotID)
	if err != nil {
		return Token{}, err
	}
	return *t, nil
}

func (e *Engine) reallocate(tokenID, newSlotID string) (*Token, error) {
	t, ok := e.tokens[tokenID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	if t.Status != StatusAllocated && t.Status != StatusWaiting {
		return nil, fmt.Errorf("%w: token %s is %s", ErrInvalidState, tokenID, t.Status)
	}
	target, ok := e.slots[newSlotID]
	if !ok || !target.CanAccommodate() {
		return nil, fmt.Errorf("%w: %s", ErrSlotUnavailable, newSlotID)
	}
	if target.ProviderID != t.ProviderID {
		return nil, fmt.Errorf("%w: %s belongs to doctor %s", ErrSlotUnavailable, newSlotID, target.ProviderID)
	}

	if old, ok := e.slots[t.SlotID]; ok {
		old.RemoveToken(t.ID)
	}
	t.SlotID = target.ID
	t.UpdatedAt = e.now()
	target.AddToken(t)
	target.Reorder()
	return t, nil
}

// CancelToken releases the token's capacity and marks it cancelled. A token
// already cancelled, no-show or completed is returned unchanged.
func (e *Engine) CancelToken(tokenID string) (Token, error) {
	return e.release(tokenID, StatusCancelled)
}

// MarkNoShow releases the token's capacity and marks it as a no-show. A token
// already cancelled, no-show or completed is returned unchanged.
func (e *Engine) MarkNoShow(tokenID string) (Token, error) {
	return e.release(tokenID, StatusNoShow)
}

func (e *Engine) release(tokenID string, status TokenStatus) (Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tokens[tokenID]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	if t.Status.Terminal() {
		return *t, nil
	}

	if s, ok := e.slots[t.SlotID]; ok {
		s.RemoveToken(t.ID)
	}
	t.setStatus(status, e.now())
	e.rec.TokenReleased(status)

	e.promoteWaiting(t.ProviderID)
	return *t, nil
}

// CompleteToken marks an allocated token as served. The token keeps its
// place in the slot.
func (e *Engine) CompleteToken(tokenID string) (Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tokens[tokenID]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	if t.Status != StatusAllocated {
		return Token{}, fmt.Errorf("%w: token %s is %s", ErrInvalidState, tokenID, t.Status)
	}
	t.setStatus(StatusCompleted, e.now())
	return *t, nil
}

// CloseSlot stops a slot from taking new tokens. Tokens already in it stay.
func (e *Engine) CloseSlot(slotID string) (SlotView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.slots[slotID]
	if !ok {
		return SlotView{}, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	s.Status = SlotClosed
	return slotView(s), nil
}

// promoteWaiting moves every waiting token of the provider into its current
// best slot, highest priority first. A failed move is logged and skipped.
func (e *Engine) promoteWaiting(providerID string) {
	p, ok := e.providers[providerID]
	if !ok {
		return
	}

	var waiting []*Token
	for _, t := range e.tokens {
		if t.ProviderID == providerID && t.Status == StatusWaiting {
			waiting = append(waiting, t)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		return servesBefore(waiting[i], waiting[j])
	})

	for _, t := range waiting {
		best := p.bestAvailableSlot()
		if best == nil || best.ID == t.SlotID {
			continue
		}
		if _, err := e.reallocate(t.ID, best.ID); err != nil {
			e.log.Warn().Err(err).
				Str("token_id", t.ID).
				Str("doctor_id", providerID).
				Msg("waiting token promotion failed")
			continue
		}
		t.setStatus(StatusAllocated, e.now())
		e.rec.TokenPromoted()
	}
}
