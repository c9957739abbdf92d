package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/logging"
)

type SimConfig struct {
	APIBaseURL     string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	Duration       time.Duration `env:"DURATION" envDefault:"30s"`
	Workers        int           `env:"WORKERS" envDefault:"10"`
	AllocateRatio  float64       `env:"ALLOCATE_RATIO" envDefault:"0.45"`
	EmergencyRatio float64       `env:"EMERGENCY_RATIO" envDefault:"0.05"`
	ReleaseRatio   float64       `env:"RELEASE_RATIO" envDefault:"0.15"`
	MoveRatio      float64       `env:"MOVE_RATIO" envDefault:"0.05"`
	ReadRatio      float64       `env:"READ_RATIO" envDefault:"0.3"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

type doctorPool struct {
	ID    string
	Slots []string
}

// DataPool holds the roster fetched from the server and the tokens the
// workers have created so far.
type DataPool struct {
	Doctors []doctorPool

	mu     sync.RWMutex
	tokens []string
}

func (dp *DataPool) AddToken(id string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.tokens = append(dp.tokens, id)
}

func (dp *DataPool) RandomToken(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.tokens) == 0 {
		return "", false
	}
	return dp.tokens[rng.Intn(len(dp.tokens))], true
}

func (dp *DataPool) RandomDoctor(rng *rand.Rand) doctorPool {
	return dp.Doctors[rng.Intn(len(dp.Doctors))]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Throttled int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusTooManyRequests:
		atomic.AddInt64(&om.Throttled, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Allocate  OperationMetrics
	Emergency OperationMetrics
	Cancel    OperationMetrics
	NoShow    OperationMetrics
	Move      OperationMetrics
	ReadToken OperationMetrics
	ReadSlot  OperationMetrics
	Schedule  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

var bookableSources = []allocation.Source{
	allocation.SourceOnline,
	allocation.SourceWalkin,
	allocation.SourcePriority,
	allocation.SourceFollowup,
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Getenv("APP_ENV"), cfg.LogLevel)

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("allocate", cfg.AllocateRatio).
		Float64("emergency", cfg.EmergencyRatio).
		Float64("release", cfg.ReleaseRatio).
		Float64("move", cfg.MoveRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sim.pool, err = sim.loadDataPool(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("doctors", len(sim.pool.Doctors)).Msg("roster loaded")

	sim.Run()
	sim.PrintReport()

	if err := sim.PrintOccupancy(context.Background()); err != nil {
		logger.Error().Err(err).Msg("fetch final schedules")
	}
}

func loadConfig() (SimConfig, error) {
	_ = godotenv.Load()

	var cfg SimConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SIM_"}); err != nil {
		return SimConfig{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return SimConfig{}, err
	}
	return normalize(cfg), nil
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	for _, r := range []float64{cfg.AllocateRatio, cfg.EmergencyRatio, cfg.ReleaseRatio, cfg.MoveRatio, cfg.ReadRatio} {
		if r < 0 {
			return fmt.Errorf("operation ratios must not be negative")
		}
	}
	return nil
}

func normalize(cfg SimConfig) SimConfig {
	total := cfg.AllocateRatio + cfg.EmergencyRatio + cfg.ReleaseRatio + cfg.MoveRatio + cfg.ReadRatio
	if total > 0 {
		cfg.AllocateRatio /= total
		cfg.EmergencyRatio /= total
		cfg.ReleaseRatio /= total
		cfg.MoveRatio /= total
		cfg.ReadRatio /= total
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return cfg
}

func (s *Simulator) fetchSchedules(ctx context.Context) ([]allocation.DoctorSchedule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/api/schedules", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get schedules: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get schedules: unexpected status %d", resp.StatusCode)
	}

	var schedules []allocation.DoctorSchedule
	if err := json.NewDecoder(resp.Body).Decode(&schedules); err != nil {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}
	return schedules, nil
}

func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	schedules, err := s.fetchSchedules(ctx)
	if err != nil {
		return nil, err
	}
	return newDataPool(schedules)
}

func newDataPool(schedules []allocation.DoctorSchedule) (*DataPool, error) {
	pool := &DataPool{}
	for _, d := range schedules {
		if len(d.Slots) == 0 {
			continue
		}
		dp := doctorPool{ID: d.DoctorID}
		for _, sl := range d.Slots {
			dp.Slots = append(dp.Slots, sl.SlotID)
		}
		pool.Doctors = append(pool.Doctors, dp)
	}
	if len(pool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors with slots loaded")
	}
	return pool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Msg("simulation running")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	faker := gofakeit.New(uint64(rng.Int63()))
	cfg := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < cfg.AllocateRatio:
			s.doAllocate(ctx, rng, faker)
		case r < cfg.AllocateRatio+cfg.EmergencyRatio:
			s.doEmergency(ctx, rng, faker)
		case r < cfg.AllocateRatio+cfg.EmergencyRatio+cfg.ReleaseRatio:
			if rng.Intn(2) == 0 {
				s.doRelease(ctx, rng, "cancel", &s.metrics.Cancel)
			} else {
				s.doRelease(ctx, rng, "noshow", &s.metrics.NoShow)
			}
		case r < cfg.AllocateRatio+cfg.EmergencyRatio+cfg.ReleaseRatio+cfg.MoveRatio:
			s.doMove(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadToken(ctx, rng)
			case 1:
				s.doReadSlot(ctx, rng)
			case 2:
				s.doReadSchedule(ctx, rng)
			}
		}
	}
}

// call sends one request and returns the status code, or 0 when the request
// never got a response. out, when non-nil, receives the decoded 2xx body.
func (s *Simulator) call(ctx context.Context, method, path string, body any, out any) (int, time.Duration) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, 0
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Debug().Err(err).Str("path", path).Msg("request failed")
		}
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.log.Debug().Err(err).Str("path", path).Msg("decode response")
		}
	}
	return resp.StatusCode, latency
}

// record drops requests cut short by the end of the run.
func (s *Simulator) record(ctx context.Context, om *OperationMetrics, status int, latency time.Duration) {
	if status == 0 && ctx.Err() != nil {
		return
	}
	om.Record(latency, status)
}

type tokenRef struct {
	ID string `json:"id"`
}

func (s *Simulator) doAllocate(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	doc := s.pool.RandomDoctor(rng)
	body := map[string]string{
		"patient_id":   "P-" + faker.DigitN(8),
		"patient_name": faker.Name(),
		"doctor_id":    doc.ID,
		"source":       string(bookableSources[rng.Intn(len(bookableSources))]),
	}
	if rng.Intn(2) == 0 {
		body["preferred_slot_id"] = doc.Slots[rng.Intn(len(doc.Slots))]
	}

	var tok tokenRef
	status, latency := s.call(ctx, http.MethodPost, "/api/tokens/allocate", body, &tok)
	if status == http.StatusCreated && tok.ID != "" {
		s.pool.AddToken(tok.ID)
	}
	s.record(ctx, &s.metrics.Allocate, status, latency)
}

func (s *Simulator) doEmergency(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	doc := s.pool.RandomDoctor(rng)
	body := map[string]string{
		"patient_id":   "E-" + faker.DigitN(8),
		"patient_name": faker.Name(),
		"doctor_id":    doc.ID,
	}

	var tok tokenRef
	status, latency := s.call(ctx, http.MethodPost, "/api/tokens/emergency", body, &tok)
	if status == http.StatusCreated && tok.ID != "" {
		s.pool.AddToken(tok.ID)
	}
	s.record(ctx, &s.metrics.Emergency, status, latency)
}

func (s *Simulator) doRelease(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	id, ok := s.pool.RandomToken(rng)
	if !ok {
		return
	}
	status, latency := s.call(ctx, http.MethodPost, fmt.Sprintf("/api/tokens/%s/%s", id, action), nil, nil)
	s.record(ctx, om, status, latency)
}

func (s *Simulator) doMove(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomToken(rng)
	if !ok {
		return
	}

	var details allocation.TokenDetails
	status, latency := s.call(ctx, http.MethodGet, "/api/tokens/"+id, nil, &details)
	if status != http.StatusOK {
		s.record(ctx, &s.metrics.Move, status, latency)
		return
	}

	slots := s.slotsOf(details.Doctor.ID)
	if len(slots) == 0 {
		return
	}
	body := map[string]string{"new_slot_id": slots[rng.Intn(len(slots))]}
	status, latency = s.call(ctx, http.MethodPost, fmt.Sprintf("/api/tokens/%s/reallocate", id), body, nil)
	s.record(ctx, &s.metrics.Move, status, latency)
}

func (s *Simulator) slotsOf(doctorID string) []string {
	for _, d := range s.pool.Doctors {
		if d.ID == doctorID {
			return d.Slots
		}
	}
	return nil
}

func (s *Simulator) doReadToken(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomToken(rng)
	if !ok {
		return
	}
	status, latency := s.call(ctx, http.MethodGet, "/api/tokens/"+id, nil, nil)
	s.record(ctx, &s.metrics.ReadToken, status, latency)
}

func (s *Simulator) doReadSlot(ctx context.Context, rng *rand.Rand) {
	doc := s.pool.RandomDoctor(rng)
	slotID := doc.Slots[rng.Intn(len(doc.Slots))]
	status, latency := s.call(ctx, http.MethodGet, "/api/slots/"+slotID, nil, nil)
	s.record(ctx, &s.metrics.ReadSlot, status, latency)
}

func (s *Simulator) doReadSchedule(ctx context.Context, rng *rand.Rand) {
	doc := s.pool.RandomDoctor(rng)
	status, latency := s.call(ctx, http.MethodGet, fmt.Sprintf("/api/doctors/%s/schedule", doc.ID), nil, nil)
	s.record(ctx, &s.metrics.Schedule, status, latency)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Allocate", &s.metrics.Allocate)
	printOperationReport("Emergency", &s.metrics.Emergency)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("No-show", &s.metrics.NoShow)
	printOperationReport("Reallocate", &s.metrics.Move)
	printOperationReport("Read token", &s.metrics.ReadToken)
	printOperationReport("Read slot", &s.metrics.ReadSlot)
	printOperationReport("Doctor schedule", &s.metrics.Schedule)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	throttled := atomic.LoadInt64(&om.Throttled)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success, total))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict, total))
	}
	if throttled > 0 {
		fmt.Printf("  Throttled: %d (%.1f%%)\n", throttled, pct(throttled, total))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed, total))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// PrintOccupancy prints each doctor's slots as they stand after the run.
func (s *Simulator) PrintOccupancy(ctx context.Context) error {
	schedules, err := s.fetchSchedules(ctx)
	if err != nil {
		return err
	}

	fmt.Println(repeat("-", 80))
	fmt.Println("FINAL OCCUPANCY")
	fmt.Println(repeat("-", 80))
	for _, d := range schedules {
		fmt.Printf("%s (%s, %s)\n", d.DoctorName, d.DoctorID, d.Specialization)
		for _, sl := range d.Slots {
			marker := ""
			if sl.CurrentCapacity > sl.MaxCapacity {
				marker = " overflow"
			}
			fmt.Printf("  %-8s %s  %d/%d %s%s\n", sl.SlotID, sl.TimeRange, sl.CurrentCapacity, sl.MaxCapacity, sl.Status, marker)
		}
	}
	return nil
}

func pct(n, total int64) float64 {
	return float64(n) / float64(total) * 100
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
