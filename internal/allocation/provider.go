package allocation

// Provider owns slots in caller-supplied order. The engine never re-sorts them.
type Provider struct {
	ID             string
	Name           string
	Specialization string
	Slots          []*Slot
}

func NewProvider(id, name, specialization string) *Provider {
	return &Provider{ID: id, Name: name, Specialization: specialization}
}

func (p *Provider) AddSlot(s *Slot) {
	p.Slots = append(p.Slots, s)
}

func (p *Provider) FindSlot(id string) *Slot {
	for _, s := range p.Slots {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// bestAvailableSlot returns the least loaded slot that can take a token,
// first declared wins on ties.
func (p *Provider) bestAvailableSlot() *Slot {
	var best *Slot
	for _, s := range p.Slots {
		if !s.CanAccommodate() {
			continue
		}
		if best == nil || s.CurrentCapacity() < best.CurrentCapacity() {
			best = s
		}
	}
	return best
}

// currentOrNextSlot returns the earliest starting active slot whose end time
// is not before now (HH:MM), falling back to the first declared slot.
func (p *Provider) currentOrNextSlot(now string) *Slot {
	var target *Slot
	for _, s := range p.Slots {
		if s.EndTime < now || s.Status == SlotClosed {
			continue
		}
		if target == nil || s.StartTime < target.StartTime {
			target = s
		}
	}
	if target == nil && len(p.Slots) > 0 {
		target = p.Slots[0]
	}
	return target
}

// nextAvailableSlot returns the earliest starting slot after the given one
// that can still take a token.
func (p *Provider) nextAvailableSlot(after *Slot) *Slot {
	var next *Slot
	for _, s := range p.Slots {
		if s.StartTime <= after.StartTime || !s.CanAccommodate() {
			continue
		}
		if next == nil || s.StartTime < next.StartTime {
			next = s
		}
	}
	return next
}
