package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL creates the booking tables. The unique indexes backstop
// double-inserts of the identical slot interval or appointment start;
// overlap between distinct intervals is enforced by the reservation
// transaction's FOR UPDATE overlap query.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS patients (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	email text,
	reminder_channel text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS doctors (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	specialty text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS availability_rules (
	id uuid PRIMARY KEY,
	doctor_id uuid NOT NULL REFERENCES doctors(id),
	weekday smallint NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	start_min int NOT NULL,
	end_min int NOT NULL CHECK (end_min > start_min),
	active boolean NOT NULL DEFAULT true,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS availability_exceptions (
	id uuid PRIMARY KEY,
	doctor_id uuid NOT NULL REFERENCES doctors(id),
	date date NOT NULL,
	all_day boolean NOT NULL DEFAULT false,
	start_min int NOT NULL DEFAULT 0,
	end_min int NOT NULL DEFAULT 0,
	reason text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	UNIQUE (doctor_id, date)
);

CREATE TABLE IF NOT EXISTS appointments (
	id uuid PRIMARY KEY,
	patient_id uuid NOT NULL REFERENCES patients(id),
	doctor_id uuid NOT NULL REFERENCES doctors(id),
	appointment_type text NOT NULL,
	status text NOT NULL,
	date date NOT NULL,
	start_min int NOT NULL,
	end_min int NOT NULL CHECK (end_min > start_min),
	reason text,
	symptoms text,
	notes text,
	is_paid boolean NOT NULL DEFAULT false,
	amount bigint NOT NULL DEFAULT 0,
	txn_ref text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_start_uniq
	ON appointments (doctor_id, date, start_min)
	WHERE status IN ('pending', 'confirmed');

CREATE INDEX IF NOT EXISTS appointments_doctor_date_idx
	ON appointments (doctor_id, date);

CREATE TABLE IF NOT EXISTS slots (
	id uuid PRIMARY KEY,
	doctor_id uuid NOT NULL REFERENCES doctors(id),
	date date NOT NULL,
	start_min int NOT NULL,
	end_min int NOT NULL CHECK (end_min > start_min),
	is_available boolean NOT NULL DEFAULT true,
	appointment_id uuid REFERENCES appointments(id) ON DELETE SET NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	UNIQUE (doctor_id, date, start_min, end_min)
);

CREATE TABLE IF NOT EXISTS reminders (
	id uuid PRIMARY KEY,
	appointment_id uuid NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
	channel text NOT NULL,
	fire_at timestamptz NOT NULL,
	is_sent boolean NOT NULL DEFAULT false,
	sent_at timestamptz,
	created_at timestamptz NOT NULL DEFAULT now(),
	UNIQUE (appointment_id, channel)
);

CREATE INDEX IF NOT EXISTS reminders_due_idx
	ON reminders (fire_at)
	WHERE is_sent = false;

CREATE TABLE IF NOT EXISTS reschedule_logs (
	id bigserial PRIMARY KEY,
	appointment_id uuid NOT NULL REFERENCES appointments(id) ON DELETE CASCADE,
	old_date date NOT NULL,
	old_start_min int NOT NULL,
	old_end_min int NOT NULL,
	new_date date NOT NULL,
	new_start_min int NOT NULL,
	new_end_min int NOT NULL,
	requested_by uuid NOT NULL,
	reason text,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS event_logs (
	id bigserial PRIMARY KEY,
	event_type text NOT NULL,
	appointment_id uuid,
	payload jsonb,
	created_at timestamptz NOT NULL DEFAULT now()
);
`

// EnsureSchema creates all tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
