package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/journal"
	"github.com/hackgods/opd-token-allocation/internal/metrics"
)

// Engine is the allocation surface the HTTP layer drives.
type Engine interface {
	AllocateToken(patientID, patientName, doctorID, preferredSlotID string, source allocation.Source) (allocation.Token, error)
	ReallocateToken(tokenID, newSlotID string) (allocation.Token, error)
	CancelToken(tokenID string) (allocation.Token, error)
	MarkNoShow(tokenID string) (allocation.Token, error)
	CompleteToken(tokenID string) (allocation.Token, error)
	AddEmergencyToken(patientID, patientName, doctorID string) (allocation.Token, error)
	CloseSlot(slotID string) (allocation.SlotView, error)

	GetTokenDetails(tokenID string) (allocation.TokenDetails, error)
	GetSlotStatus(slotID string) (allocation.SlotView, error)
	GetDoctorSchedule(doctorID string) (allocation.DoctorSchedule, error)
	GetAllSchedules() []allocation.DoctorSchedule
}

type RouterConfig struct {
	Engine  Engine
	Journal *journal.Journal
	Metrics *metrics.Metrics
	Health  *HealthHandler
	Logger  zerolog.Logger
	Env     string
	Version string

	RateLimitRPS   int
	RateLimitBurst int
}

var endpoints = map[string]string{
	"allocateToken":     "POST /api/tokens/allocate",
	"reallocateToken":   "POST /api/tokens/{tokenID}/reallocate",
	"cancelToken":       "POST /api/tokens/{tokenID}/cancel",
	"markNoShow":        "POST /api/tokens/{tokenID}/noshow",
	"completeToken":     "POST /api/tokens/{tokenID}/complete",
	"emergencyToken":    "POST /api/tokens/emergency",
	"getToken":          "GET /api/tokens/{tokenID}",
	"getSlot":           "GET /api/slots/{slotID}",
	"closeSlot":         "POST /api/slots/{slotID}/close",
	"getDoctorSchedule": "GET /api/doctors/{doctorID}/schedule",
	"getAllSchedules":   "GET /api/schedules",
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Instrument)
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// Health endpoints
	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(cfg.Env, cfg.Version)
	}
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, IndexResponse{
			Name:        "OPD Token Allocation Engine",
			Version:     cfg.Version,
			Description: "Hospital OPD token management with priority ordering and elastic capacity",
			Endpoints:   endpoints,
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint_not_found", "")
	})

	eng, j := cfg.Engine, cfg.Journal
	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
			r.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
		}

		r.Post("/tokens/allocate", allocateTokenHandler(eng, j))
		r.Post("/tokens/emergency", emergencyTokenHandler(eng, j))
		r.Get("/tokens/{tokenID}", getTokenHandler(eng))
		r.Post("/tokens/{tokenID}/reallocate", reallocateTokenHandler(eng, j))
		r.Post("/tokens/{tokenID}/cancel", tokenTransitionHandler(eng.CancelToken, j, journal.EventTokenCancelled))
		r.Post("/tokens/{tokenID}/noshow", tokenTransitionHandler(eng.MarkNoShow, j, journal.EventTokenNoShow))
		r.Post("/tokens/{tokenID}/complete", tokenTransitionHandler(eng.CompleteToken, j, journal.EventTokenCompleted))

		r.Get("/slots/{slotID}", getSlotHandler(eng))
		r.Post("/slots/{slotID}/close", closeSlotHandler(eng, j))

		r.Get("/doctors/{doctorID}/schedule", doctorScheduleHandler(eng))
		r.Get("/schedules", allSchedulesHandler(eng))
	})

	return r
}
