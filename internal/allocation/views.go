package allocation

import (
	"fmt"
	"time"
)

type TokenSummary struct {
	ID          string      `json:"id"`
	TokenNumber int64       `json:"token_number"`
	PatientName string      `json:"patient_name"`
	Source      Source      `json:"source"`
	Priority    int         `json:"priority"`
	Status      TokenStatus `json:"status"`
}

type SlotView struct {
	SlotID            string         `json:"slot_id"`
	DoctorID          string         `json:"doctor_id"`
	StartTime         string         `json:"start_time"`
	EndTime           string         `json:"end_time"`
	TimeRange         string         `json:"time_range"`
	Status            SlotStatus     `json:"status"`
	MaxCapacity       int            `json:"max_capacity"`
	CurrentCapacity   int            `json:"current_capacity"`
	AvailableCapacity int            `json:"available_capacity"`
	Tokens            []TokenSummary `json:"tokens"`
}

type DoctorSchedule struct {
	DoctorID       string     `json:"doctor_id"`
	DoctorName     string     `json:"doctor_name"`
	Specialization string     `json:"specialization"`
	Slots          []SlotView `json:"slots"`
}

type TokenRecord struct {
	ID          string      `json:"id"`
	TokenNumber int64       `json:"token_number"`
	PatientID   string      `json:"patient_id"`
	PatientName string      `json:"patient_name"`
	Source      Source      `json:"source"`
	Priority    int         `json:"priority"`
	Status      TokenStatus `json:"status"`
	AllocatedAt time.Time   `json:"allocated_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type SlotSummary struct {
	ID              string `json:"id"`
	TimeRange       string `json:"time_range"`
	CurrentCapacity int    `json:"current_capacity"`
	MaxCapacity     int    `json:"max_capacity"`
}

type DoctorSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

// TokenDetails joins a token with its slot and doctor.
type TokenDetails struct {
	Token  TokenRecord   `json:"token"`
	Slot   SlotSummary   `json:"slot"`
	Doctor DoctorSummary `json:"doctor"`
}

func (e *Engine) GetSlotStatus(slotID string) (SlotView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.slots[slotID]
	if !ok {
		return SlotView{}, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	return slotView(s), nil
}

func (e *Engine) GetDoctorSchedule(providerID string) (DoctorSchedule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.providers[providerID]
	if !ok {
		return DoctorSchedule{}, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	return schedule(p), nil
}

// GetAllSchedules lists schedules in provider registration order.
func (e *Engine) GetAllSchedules() []DoctorSchedule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]DoctorSchedule, 0, len(e.providerOrder))
	for _, id := range e.providerOrder {
		out = append(out, schedule(e.providers[id]))
	}
	return out
}

// GetTokenDetails works for tokens in any status, including cancelled ones.
func (e *Engine) GetTokenDetails(tokenID string) (TokenDetails, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.tokens[tokenID]
	if !ok {
		return TokenDetails{}, fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}

	d := TokenDetails{
		Token: TokenRecord{
			ID:          t.ID,
			TokenNumber: t.TokenNumber,
			PatientID:   t.PatientID,
			PatientName: t.PatientName,
			Source:      t.Source,
			Priority:    t.Priority,
			Status:      t.Status,
			AllocatedAt: t.AllocatedAt,
			UpdatedAt:   t.UpdatedAt,
		},
	}
	if s, ok := e.slots[t.SlotID]; ok {
		d.Slot = SlotSummary{
			ID:              s.ID,
			TimeRange:       s.TimeRange(),
			CurrentCapacity: s.CurrentCapacity(),
			MaxCapacity:     s.MaxCapacity,
		}
	}
	if p, ok := e.providers[t.ProviderID]; ok {
		d.Doctor = DoctorSummary{ID: p.ID, Name: p.Name, Specialization: p.Specialization}
	}
	return d, nil
}

func schedule(p *Provider) DoctorSchedule {
	slots := make([]SlotView, 0, len(p.Slots))
	for _, s := range p.Slots {
		slots = append(slots, slotView(s))
	}
	return DoctorSchedule{
		DoctorID:       p.ID,
		DoctorName:     p.Name,
		Specialization: p.Specialization,
		Slots:          slots,
	}
}

func slotView(s *Slot) SlotView {
	tokens := make([]TokenSummary, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, TokenSummary{
			ID:          t.ID,
			TokenNumber: t.TokenNumber,
			PatientName: t.PatientName,
			Source:      t.Source,
			Priority:    t.Priority,
			Status:      t.Status,
		})
	}
	return SlotView{
		SlotID:            s.ID,
		DoctorID:          s.ProviderID,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		TimeRange:         s.TimeRange(),
		Status:            s.Status,
		MaxCapacity:       s.MaxCapacity,
		CurrentCapacity:   s.CurrentCapacity(),
		AvailableCapacity: max(s.AvailableCapacity(), 0),
		Tokens:            tokens,
	}
}
