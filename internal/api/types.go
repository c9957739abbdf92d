package api

import (
	"time"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
)

type AllocateTokenRequest struct {
	PatientID       string `json:"patient_id"`
	PatientName     string `json:"patient_name"`
	DoctorID        string `json:"doctor_id"`
	PreferredSlotID string `json:"preferred_slot_id,omitempty"`
	Source          string `json:"source"`
}

type ReallocateTokenRequest struct {
	NewSlotID string `json:"new_slot_id"`
}

type EmergencyTokenRequest struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	DoctorID    string `json:"doctor_id"`
}

type TokenResponse struct {
	ID          string    `json:"id"`
	TokenNumber int64     `json:"token_number"`
	PatientID   string    `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	DoctorID    string    `json:"doctor_id"`
	SlotID      string    `json:"slot_id"`
	Source      string    `json:"source"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"`
	AllocatedAt time.Time `json:"allocated_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type IndexResponse struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
}

func toTokenResponse(t allocation.Token) TokenResponse {
	return TokenResponse{
		ID:          t.ID,
		TokenNumber: t.TokenNumber,
		PatientID:   t.PatientID,
		PatientName: t.PatientName,
		DoctorID:    t.ProviderID,
		SlotID:      t.SlotID,
		Source:      string(t.Source),
		Priority:    t.Priority,
		Status:      string(t.Status),
		AllocatedAt: t.AllocatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
