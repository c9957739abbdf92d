package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/api"
	"github.com/hackgods/opd-token-allocation/internal/journal"
	"github.com/hackgods/opd-token-allocation/internal/roster"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	eng := allocation.NewEngine()
	require.NoError(t, roster.Default().Apply(eng))

	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Engine:  eng,
		Journal: journal.New(zerolog.Nop()),
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOperationMetrics(t *testing.T) {
	var om OperationMetrics
	om.Record(30*time.Millisecond, http.StatusCreated)
	om.Record(10*time.Millisecond, http.StatusOK)
	om.Record(20*time.Millisecond, http.StatusConflict)
	om.Record(40*time.Millisecond, http.StatusTooManyRequests)
	om.Record(50*time.Millisecond, 0)

	assert.EqualValues(t, 5, om.Total)
	assert.EqualValues(t, 2, om.Success)
	assert.EqualValues(t, 1, om.Conflict)
	assert.EqualValues(t, 1, om.Throttled)
	assert.EqualValues(t, 1, om.Error)

	avg, min, max, p50, p95 := om.Stats()
	assert.Equal(t, 30*time.Millisecond, avg)
	assert.Equal(t, 10*time.Millisecond, min)
	assert.Equal(t, 50*time.Millisecond, max)
	assert.Equal(t, 30*time.Millisecond, p50)
	assert.Equal(t, 50*time.Millisecond, p95)
}

func TestNormalize(t *testing.T) {
	cfg := normalize(SimConfig{
		APIBaseURL:     "http://localhost:8080/",
		AllocateRatio:  2,
		EmergencyRatio: 1,
		ReleaseRatio:   1,
		MoveRatio:      0,
		ReadRatio:      4,
	})
	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.InDelta(t, 0.25, cfg.AllocateRatio, 1e-9)
	assert.InDelta(t, 0.125, cfg.EmergencyRatio, 1e-9)
	assert.InDelta(t, 0.5, cfg.ReadRatio, 1e-9)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SIM_WORKERS", "3")
	t.Setenv("SIM_DURATION", "2s")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.Duration)

	t.Setenv("SIM_WORKERS", "0")
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestNewDataPoolSkipsDoctorsWithoutSlots(t *testing.T) {
	pool, err := newDataPool([]allocation.DoctorSchedule{
		{DoctorID: "DOC001", Slots: []allocation.SlotView{{SlotID: "S1"}, {SlotID: "S2"}}},
		{DoctorID: "DOC002"},
	})
	require.NoError(t, err)
	require.Len(t, pool.Doctors, 1)
	assert.Equal(t, []string{"S1", "S2"}, pool.Doctors[0].Slots)

	_, err = newDataPool(nil)
	assert.Error(t, err)
}

func TestSimulatorAgainstServer(t *testing.T) {
	srv := newTestServer(t)

	sim := &Simulator{
		config: normalize(SimConfig{
			APIBaseURL:     srv.URL,
			Duration:       300 * time.Millisecond,
			Workers:        4,
			AllocateRatio:  0.5,
			EmergencyRatio: 0.1,
			ReleaseRatio:   0.1,
			MoveRatio:      0.1,
			ReadRatio:      0.2,
		}),
		client: srv.Client(),
		log:    zerolog.Nop(),
	}

	var err error
	sim.pool, err = sim.loadDataPool(context.Background())
	require.NoError(t, err)
	assert.Len(t, sim.pool.Doctors, 4)

	sim.Run()

	assert.Positive(t, sim.metrics.Allocate.Total)
	assert.Positive(t, sim.metrics.Allocate.Success)
	assert.Zero(t, sim.metrics.Allocate.Error)
	assert.Zero(t, sim.metrics.Emergency.Error)
	assert.Zero(t, sim.metrics.ReadSlot.Error)
	assert.Zero(t, sim.metrics.Schedule.Error)

	require.NoError(t, sim.PrintOccupancy(context.Background()))
}
