package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"Dentistry",
}

// Every seeded doctor works the same weekday shape.
var weekdays = []schedule.Day{schedule.Monday, schedule.Tuesday, schedule.Wednesday, schedule.Thursday, schedule.Friday}

type shift struct {
	start, end string
	capacity   int
}

var shifts = []shift{
	{"09:00", "11:00", 3},
	{"11:30", "13:00", 2},
	{"14:00", "17:00", 4},
}

func main() {
	doctors := flag.Int("doctors", 100, "number of doctors to create")
	patients := flag.Int("patients", 9000, "number of patients to create")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.MustNew(cfg.Env).Named("seed")
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "seed", MaxConns: int32(cfg.PostgresMaxConn)})
	cancel()
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedDoctors(context.Background(), pool, faker, *doctors, logger); err != nil {
		logger.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedPatients(context.Background(), pool, faker, *patients, logger); err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}

	logger.Info("seed complete")
}

// seedDoctors creates each doctor with its time slots and weekday schedule
// in one transaction.
func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *zap.Logger) error {
	logger.Info("seeding doctors", zap.Int("count", count))

	for i := 0; i < count; i++ {
		err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
			specialty := specialties[faker.Number(0, len(specialties)-1)]
			provider := &directory.Provider{
				UserID:       uuid.New(),
				Name:         "Dr. " + faker.Name(),
				Specialty:    &specialty,
				PricingCents: int64(faker.Number(20, 150)) * 500,
			}
			if err := directory.NewPgRepository(tx).CreateProvider(ctx, provider); err != nil {
				return err
			}

			repo := schedule.NewPgRepository(tx)
			slots := make([]schedule.TimeSlot, 0, len(shifts))
			for _, s := range shifts {
				slot := schedule.TimeSlot{
					ProviderID: provider.ID,
					Start:      schedule.MustClock(s.start),
					End:        schedule.MustClock(s.end),
					Capacity:   s.capacity,
				}
				if err := repo.CreateTimeSlot(ctx, &slot); err != nil {
					return err
				}
				slots = append(slots, slot)
			}

			for _, day := range weekdays {
				entry := &schedule.Entry{ProviderID: provider.ID, Day: day, Slots: slots}
				if err := repo.CreateEntry(ctx, entry); err != nil {
					return fmt.Errorf("schedule %s: %w", day, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	logger.Info("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger *zap.Logger) error {
	logger.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
			repo := directory.NewPgRepository(tx)
			for i := offset; i < end; i++ {
				email := faker.Email()
				if err := repo.CreatePatient(ctx, &directory.Patient{
					UserID: uuid.New(),
					Name:   faker.Name(),
					Email:  &email,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		logger.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}
