package allocation

import "fmt"

// AddEmergencyToken inserts an emergency patient into the provider's current
// or next slot. When that slot is full the lowest priority token below 100 is
// moved to the next slot with room and marked waiting. If nobody can be moved
// the overflow policy decides between exceeding MaxCapacity and failing.
func (e *Engine) AddEmergencyToken(patientID, patientName, providerID string) (Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.providers[providerID]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	target := p.currentOrNextSlot(e.now().Format("15:04"))
	if target == nil {
		return Token{}, fmt.Errorf("%w: doctor %s has no slots", ErrNoActiveSlot, providerID)
	}

	if target.Status == SlotClosed && e.overflow == OverflowReject {
		return Token{}, fmt.Errorf("%w: slot %s is closed", ErrCapacityExhausted, target.ID)
	}
	if target.Status == SlotActive && !target.CanAccommodate() &&
		!e.preempt(p, target) && e.overflow == OverflowReject {
		return Token{}, fmt.Errorf("%w: slot %s is full and nothing can be displaced", ErrCapacityExhausted, target.ID)
	}

	t := e.newToken(patientID, patientName, p.ID, target.ID, SourcePriority, EmergencyPriority)
	t.markEmergency(t.AllocatedAt)

	if !target.AddToken(t) {
		// Full or closed; under the elastic policy an emergency is never
		// turned away.
		target.forceAdd(t)
	}
	target.Reorder()
	e.tokens[t.ID] = t

	e.rec.TokenAllocated(SourceEmergency)
	if target.CurrentCapacity() > target.MaxCapacity {
		e.rec.EmergencyOverflow()
		e.log.Warn().
			Str("slot_id", target.ID).
			Int("current_capacity", target.CurrentCapacity()).
			Int("max_capacity", target.MaxCapacity).
			Msg("emergency token exceeded slot capacity")
	}
	return *t, nil
}

// preempt frees one unit in slot by moving its lowest priority token to the
// next slot with room. It reports whether a token was moved.
func (e *Engine) preempt(p *Provider, slot *Slot) bool {
	victim := slot.lowestPreemptible()
	if victim == nil {
		return false
	}
	next := p.nextAvailableSlot(slot)
	if next == nil {
		return false
	}

	slot.RemoveToken(victim.ID)
	victim.SlotID = next.ID
	victim.setStatus(StatusWaiting, e.now())
	next.AddToken(victim)
	next.Reorder()
	slot.Reorder()
	e.rec.TokenPreempted()

	e.log.Info().
		Str("token_id", victim.ID).
		Str("from_slot", slot.ID).
		Str("to_slot", next.ID).
		Msg("token displaced by emergency")
	return true
}
