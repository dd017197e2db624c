package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/booking-engine/internal/booking"
	"github.com/careslot/booking-engine/internal/config"
	"github.com/careslot/booking-engine/internal/db"
	redisclient "github.com/careslot/booking-engine/internal/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedDoctors(context.Background(), pool, 25)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSchedules(context.Background(), pool, doctors); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500
	channels := []string{"email", "sms", "push"}

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			channel := channels[gofakeit.Number(0, len(channels)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, reminder_channel, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, channel)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedSchedules gives every doctor a Monday-to-Friday morning and
// afternoon rule and materializes slots for the next two weeks through
// the same generator the API uses.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID) error {
	log.Printf("seeding schedules for %d doctors", len(doctors))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	repo := booking.NewPgRepository(pool)
	svc := booking.NewService(repo, redisclient.NopLocker{}, cfg)

	morningStart, _ := booking.ParseClock("09:00")
	morningEnd, _ := booking.ParseClock("12:00")
	afternoonStart, _ := booking.ParseClock("14:00")
	afternoonEnd, _ := booking.ParseClock("17:00")

	for _, doctorID := range doctors {
		for wd := time.Monday; wd <= time.Friday; wd++ {
			if _, err := svc.AddRule(ctx, doctorID, wd, morningStart, morningEnd); err != nil {
				return err
			}
			if _, err := svc.AddRule(ctx, doctorID, wd, afternoonStart, afternoonEnd); err != nil {
				return err
			}
		}

		today := booking.DateOf(time.Now())
		for day := 0; day < 14; day++ {
			date := today.AddDate(0, 0, day)
			if _, err := svc.GenerateSlots(ctx, doctorID, date, cfg.SlotDuration); err != nil {
				return err
			}
		}
	}

	log.Println("schedules seeded")
	return nil
}
