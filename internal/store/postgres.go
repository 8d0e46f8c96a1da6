package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slotbook/slotbook/internal/schedule"
	"github.com/slotbook/slotbook/libs/db"
)

// Postgres implements the scheduling stores on top of pgx. Slot conflicts are
// enforced by an exclusion constraint over (provider_id, date, minute range)
// filtered to active statuses, so Create stays atomic without an explicit
// lock or serializable transaction.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) ReplaceWindows(ctx context.Context, providerID string, windows []schedule.AvailabilityWindow) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM availability_windows WHERE provider_id = $1`, providerID); err != nil {
		return err
	}
	for _, w := range windows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_windows (id, provider_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
		`, w.ID, providerID, int(w.Weekday), w.StartMinute, w.EndMinute); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Window(ctx context.Context, providerID string, weekday time.Weekday) (schedule.AvailabilityWindow, error) {
	var w schedule.AvailabilityWindow
	var wd int
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, provider_id, weekday, start_minute, end_minute
		FROM availability_windows
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_minute
		LIMIT 1
	`, providerID, int(weekday)).Scan(&w.ID, &w.ProviderID, &wd, &w.StartMinute, &w.EndMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.AvailabilityWindow{}, fmt.Errorf("no window for provider %s on %s: %w", providerID, weekday, schedule.ErrNotFound)
	}
	if err != nil {
		return schedule.AvailabilityWindow{}, err
	}
	w.Weekday = time.Weekday(wd)
	return w, nil
}

func (p *Postgres) Windows(ctx context.Context, providerID string) ([]schedule.AvailabilityWindow, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, provider_id, weekday, start_minute, end_minute
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY weekday, start_minute
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []schedule.AvailabilityWindow
	for rows.Next() {
		var w schedule.AvailabilityWindow
		var wd int
		if err := rows.Scan(&w.ID, &w.ProviderID, &wd, &w.StartMinute, &w.EndMinute); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(wd)
		windows = append(windows, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}

func (p *Postgres) CreateService(ctx context.Context, svc *schedule.Service) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO services (id, provider_id, name, duration_minutes, price, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, svc.ID, svc.ProviderID, svc.Name, svc.DurationMinutes, svc.Price, svc.Description, svc.CreatedAt)
	return err
}

func (p *Postgres) Service(ctx context.Context, id string) (schedule.Service, error) {
	var svc schedule.Service
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, provider_id, name, duration_minutes, price, COALESCE(description, ''), created_at
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.ProviderID, &svc.Name, &svc.DurationMinutes, &svc.Price, &svc.Description, &svc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.Service{}, fmt.Errorf("service %s: %w", id, schedule.ErrNotFound)
	}
	if err != nil {
		return schedule.Service{}, err
	}
	return svc, nil
}

func (p *Postgres) ServicesByProvider(ctx context.Context, providerID string) ([]schedule.Service, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, provider_id, name, duration_minutes, price, COALESCE(description, ''), created_at
		FROM services
		WHERE provider_id = $1
		ORDER BY name
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []schedule.Service
	for rows.Next() {
		var svc schedule.Service
		if err := rows.Scan(&svc.ID, &svc.ProviderID, &svc.Name, &svc.DurationMinutes, &svc.Price, &svc.Description, &svc.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return services, nil
}

func (p *Postgres) Create(ctx context.Context, appt *schedule.Appointment) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO appointments
			(id, customer_id, customer_name, provider_id, provider_name, service_name,
			 date, start_minute, end_minute, status, notes, recommended, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, appt.ID, appt.CustomerID, appt.CustomerName, appt.ProviderID, appt.ProviderName, appt.ServiceName,
		appt.Date, appt.StartMinute, appt.EndMinute, string(appt.Status), appt.Notes, appt.Recommended, appt.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return fmt.Errorf("slot %s on %s taken: %w",
				schedule.FormatClock(appt.StartMinute), schedule.FormatDate(appt.Date), schedule.ErrSlotUnavailable)
		}
		return err
	}
	return nil
}

func (p *Postgres) Appointment(ctx context.Context, id string) (schedule.Appointment, error) {
	appt, err := scanAppointment(p.pool.QueryRow(ctx, `
		SELECT id::text, customer_id, customer_name, provider_id, provider_name, service_name,
			date, start_minute, end_minute, status, COALESCE(notes, ''), recommended, created_at
		FROM appointments
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.Appointment{}, fmt.Errorf("appointment %s: %w", id, schedule.ErrNotFound)
	}
	return appt, err
}

// CompareAndSwapStatus distinguishes "row gone" from "status moved" with a
// second read so the caller gets the right error kind.
func (p *Postgres) CompareAndSwapStatus(ctx context.Context, id string, from, to schedule.Status) (schedule.Appointment, error) {
	appt, err := scanAppointment(p.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3
		WHERE id = $1 AND status = $2
		RETURNING id::text, customer_id, customer_name, provider_id, provider_name, service_name,
			date, start_minute, end_minute, status, COALESCE(notes, ''), recommended, created_at
	`, id, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := p.Appointment(ctx, id); getErr != nil {
			return schedule.Appointment{}, getErr
		}
		return schedule.Appointment{}, fmt.Errorf("appointment %s no longer %s: %w", id, from, schedule.ErrInvalidTransition)
	}
	return appt, err
}

func (p *Postgres) List(ctx context.Context, f schedule.AppointmentFilter) ([]schedule.Appointment, error) {
	query := `
		SELECT id::text, customer_id, customer_name, provider_id, provider_name, service_name,
			date, start_minute, end_minute, status, COALESCE(notes, ''), recommended, created_at
		FROM appointments
		WHERE 1=1`
	var args []any
	if f.ProviderID != "" {
		args = append(args, f.ProviderID)
		query += fmt.Sprintf(" AND provider_id = $%d", len(args))
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if !f.Date.IsZero() {
		args = append(args, f.Date)
		query += fmt.Sprintf(" AND date = $%d", len(args))
	}
	if f.ActiveOnly {
		query += " AND status IN ('pending', 'confirmed')"
	}
	query += " ORDER BY date, start_minute, id"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []schedule.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (schedule.Appointment, error) {
	var appt schedule.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.CustomerID,
		&appt.CustomerName,
		&appt.ProviderID,
		&appt.ProviderName,
		&appt.ServiceName,
		&appt.Date,
		&appt.StartMinute,
		&appt.EndMinute,
		&status,
		&appt.Notes,
		&appt.Recommended,
		&appt.CreatedAt,
	)
	if err != nil {
		return schedule.Appointment{}, err
	}
	appt.Status = schedule.Status(status)
	appt.Date = schedule.NormalizeDate(appt.Date)
	return appt, nil
}
