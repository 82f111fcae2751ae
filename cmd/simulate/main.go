package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
	DoctorLimit  int
	PatientLimit int
	// Bookings target this many distinct days so windows fill up.
	Days int
}

type member struct {
	id    uuid.UUID
	token string
}

type booked struct {
	id        uuid.UUID
	doctorID  uuid.UUID
	patientID uuid.UUID
}

type DataPool struct {
	Doctors  []member
	Patients []member
	tokens   map[uuid.UUID]string

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
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
	case status == http.StatusBadRequest:
		atomic.AddInt64(&om.Rejected, 1)
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

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	at := func(pct int) time.Duration {
		return latencies[min(len(latencies)*pct/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), at(50), at(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Confirm OperationMetrics
	Cancel  OperationMetrics
	List    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	loc     *time.Location
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.MustNew(cfg.Env).Named("simulate")
	defer func() { _ = logger.Sync() }()

	simCfg := loadSimConfig()
	if err := validateConfig(simCfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", simCfg.Duration),
		zap.Int("workers", simCfg.Workers),
		zap.Float64("booking", simCfg.BookingRatio),
		zap.Float64("confirm", simCfg.ConfirmRatio),
		zap.Float64("cancel", simCfg.CancelRatio),
		zap.Float64("read", simCfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "simulate", MaxConns: int32(cfg.PostgresMaxConn)})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, simCfg, cfg.JWTSecret)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data loaded", zap.Int("doctors", len(dataPool.Doctors)), zap.Int("patients", len(dataPool.Patients)))

	sim := &Simulator{
		config: simCfg,
		loc:    cfg.Location,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	auditCtx, cancelAudit := context.WithTimeout(context.Background(), time.Minute)
	defer cancelAudit()
	overbooked, err := audit(auditCtx, pgPool, dataPool.Doctors, cfg.Location)
	if err != nil {
		logger.Fatal("capacity audit", zap.Error(err))
	}
	if len(overbooked) > 0 {
		for _, line := range overbooked {
			fmt.Println("OVERBOOKED:", line)
		}
		os.Exit(1)
	}
	fmt.Println("Capacity audit: no window exceeds its capacity")
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 5),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		Days:         getInt("SIM_DAYS", 3),
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadMembers(ctx context.Context, pool *pgxpool.Pool, query string, limit int, role auth.Role, secret string, tokens map[uuid.UUID]string) ([]member, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []member
	for rows.Next() {
		var id, userID uuid.UUID
		if err := rows.Scan(&id, &userID); err != nil {
			return nil, err
		}
		token, err := auth.MakeToken(auth.Actor{UserID: userID, Role: role}, secret, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		tokens[id] = token
		out = append(out, member{id: id, token: token})
	}
	return out, rows.Err()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, secret string) (*DataPool, error) {
	dp := &DataPool{tokens: make(map[uuid.UUID]string)}

	var err error
	dp.Doctors, err = loadMembers(ctx, pool, `
		SELECT p.id, p.user_id FROM providers p
		WHERE EXISTS (SELECT 1 FROM schedule_entries e WHERE e.provider_id = p.id)
		ORDER BY p.created_at LIMIT $1
	`, cfg.DoctorLimit, auth.RoleDoctor, secret, dp.tokens)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	dp.Patients, err = loadMembers(ctx, pool, `SELECT id, user_id FROM patients LIMIT $1`,
		cfg.PatientLimit, auth.RolePatient, secret, dp.tokens)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(dp.Doctors) == 0 {
		return nil, fmt.Errorf("no scheduled doctors loaded, run cmd/seed first")
	}
	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			s.doList(ctx, rng)
		}
	}
}

// candidateTime picks a weekday minute a few days out, on one of a handful of
// dates so concurrent bookings compete for the same windows.
func (s *Simulator) candidateTime(rng *rand.Rand) time.Time {
	day := time.Now().In(s.loc).AddDate(0, 0, 2)
	for offset := rng.Intn(s.config.Days); ; day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if offset == 0 {
			break
		}
		offset--
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 8+rng.Intn(10), rng.Intn(4)*15, 0, 0, s.loc)
}

func (s *Simulator) call(ctx context.Context, method, path, token string, body any) (int, []byte, time.Duration) {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, latency
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	status, body, latency := s.call(ctx, http.MethodPost,
		fmt.Sprintf("/patients/%s/appointments", patient.id), patient.token,
		map[string]string{
			"doctor_id":    doctor.id.String(),
			"purpose":      "simulated visit",
			"scheduled_at": s.candidateTime(rng).Format(time.RFC3339),
		})
	if ctx.Err() != nil && status == 0 {
		return
	}
	s.metrics.Booking.Record(latency, status)

	if status == http.StatusCreated {
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(body, &appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(booked{id: appt.ID, doctorID: doctor.id, patientID: patient.id})
		}
	}
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	status, _, latency := s.call(ctx, http.MethodPatch,
		fmt.Sprintf("/doctors/%s/appointments/%s/update_status", appt.doctorID, appt.id),
		s.pool.tokens[appt.doctorID], map[string]string{"status": "CONFIRMED"})
	if ctx.Err() != nil && status == 0 {
		return
	}
	s.metrics.Confirm.Record(latency, status)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	status, _, latency := s.call(ctx, http.MethodDelete,
		fmt.Sprintf("/patients/%s/appointments/%s/cancel", appt.patientID, appt.id),
		s.pool.tokens[appt.patientID], nil)
	if ctx.Err() != nil && status == 0 {
		return
	}
	s.metrics.Cancel.Record(latency, status)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	status, _, latency := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/doctors/%s/appointments?limit=20", doctor.id), doctor.token, nil)
	if ctx.Err() != nil && status == 0 {
		return
	}
	s.metrics.List.Record(latency, status)
}

// audit recounts every provider window from the database and reports the
// ones holding more active appointments than the slot capacity.
func audit(ctx context.Context, pool *pgxpool.Pool, doctors []member, loc *time.Location) ([]string, error) {
	var overbooked []string

	for _, doctor := range doctors {
		avail, err := schedule.LoadAvailability(ctx, pool, doctor.id)
		if err != nil {
			return nil, err
		}

		rows, err := pool.Query(ctx, `
			SELECT scheduled_at FROM appointments
			WHERE provider_id = $1 AND status <> 'CANCELED'
		`, doctor.id)
		if err != nil {
			return nil, err
		}

		counts := make(map[string]int)
		capacity := make(map[string]int)
		for rows.Next() {
			var at time.Time
			if err := rows.Scan(&at); err != nil {
				rows.Close()
				return nil, err
			}
			at = at.In(loc)
			slot, ok := avail.Match(at)
			if !ok {
				continue
			}
			key := fmt.Sprintf("%s %s %s-%s", doctor.id, at.Format(time.DateOnly), slot.Start, slot.End)
			counts[key]++
			capacity[key] = slot.Capacity
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		for key, n := range counts {
			if n > capacity[key] {
				overbooked = append(overbooked, fmt.Sprintf("%s holds %d, capacity %d", key, n, capacity[key]))
			}
		}
	}
	return overbooked, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List by Doctor", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	for _, row := range []struct {
		label string
		n     int64
	}{
		{"Success", atomic.LoadInt64(&om.Success)},
		{"Rejected", atomic.LoadInt64(&om.Rejected)},
		{"Conflicts", atomic.LoadInt64(&om.Conflict)},
		{"Throttled", atomic.LoadInt64(&om.Throttled)},
		{"Errors", atomic.LoadInt64(&om.Error)},
	} {
		if row.n > 0 || row.label == "Success" {
			fmt.Printf("  %s: %d (%.1f%%)\n", row.label, row.n, pct(row.n))
		}
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
}
