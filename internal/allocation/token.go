package allocation

import "time"

type Source string

const (
	SourceOnline    Source = "online"
	SourceWalkin    Source = "walkin"
	SourcePriority  Source = "priority"
	SourceFollowup  Source = "followup"
	SourceEmergency Source = "emergency"
)

// EmergencyPriority is assigned unconditionally to emergency tokens.
const EmergencyPriority = 150

// preemptionCeiling: only tokens strictly below this priority can be displaced.
const preemptionCeiling = 100

var sourcePriority = map[Source]int{
	SourcePriority: 100,
	SourceFollowup: 75,
	SourceOnline:   50,
	SourceWalkin:   25,
}

// Priority returns the default priority for a caller-supplied source.
// The emergency source is not part of the table.
func (s Source) Priority() (int, bool) {
	p, ok := sourcePriority[s]
	return p, ok
}

// Bookable reports whether callers may request this source directly.
func (s Source) Bookable() bool {
	_, ok := sourcePriority[s]
	return ok
}

type TokenStatus string

const (
	StatusAllocated TokenStatus = "allocated"
	StatusWaiting   TokenStatus = "waiting"
	StatusCancelled TokenStatus = "cancelled"
	StatusNoShow    TokenStatus = "noshow"
	StatusCompleted TokenStatus = "completed"
)

// Terminal statuses never return to a slot.
func (s TokenStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusNoShow || s == StatusCompleted
}

// Token is a patient's claim on one unit of slot capacity.
// SlotID and ProviderID are lookup keys into the engine registries.
type Token struct {
	ID          string      `json:"id"`
	PatientID   string      `json:"patient_id"`
	PatientName string      `json:"patient_name"`
	ProviderID  string      `json:"doctor_id"`
	SlotID      string      `json:"slot_id"`
	Source      Source      `json:"source"`
	TokenNumber int64       `json:"token_number"`
	Priority    int         `json:"priority"`
	Status      TokenStatus `json:"status"`
	AllocatedAt time.Time   `json:"allocated_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (t *Token) setStatus(status TokenStatus, now time.Time) {
	t.Status = status
	t.UpdatedAt = now
}

// markEmergency promotes the token. Promotion is one-way.
func (t *Token) markEmergency(now time.Time) {
	t.Priority = EmergencyPriority
	t.Source = SourceEmergency
	t.UpdatedAt = now
}

// servesBefore is the single serving-order rule: priority descending,
// then token number ascending.
func servesBefore(a, b *Token) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.TokenNumber < b.TokenNumber
}
