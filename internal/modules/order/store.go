// README: Order store backed by PostgreSQL. Status changes are compare-and-set on status_version.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

var _ Backend = (*Store)(nil)

const orderColumns = `id, kind, payload, status, status_version, worker_id, rating, cancel_reason,
               created_at, accepted_at, completed_at`

// Create inserts a pending order. otp may be empty.
func (s *Store) Create(ctx context.Context, o RawOrder, otp string) error {
	payload, err := Encode(o)
	if err != nil {
		return err
	}
	c := o.Base()
	status := c.Status
	if status == "" {
		status = string(trip.StatusPending)
	}
	createdAt := time.Now()
	if c.CreatedAt != nil {
		createdAt = *c.CreatedAt
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO orders (id, kind, payload, status, status_version, worker_id, otp, created_at)
        VALUES ($1, $2, $3, $4, 0, $5, $6, $7)`,
		string(c.ID()),
		string(o.Kind()),
		payload,
		status,
		toStringPtr(c.WorkerID),
		toStringPtr(types.ID(otp)),
		createdAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("create order %s/%s: %w", o.Kind(), c.ID(), ErrExists)
	}
	return err
}

func (s *Store) Get(ctx context.Context, ref trip.Ref) (RawOrder, int, error) {
	row := s.db.QueryRow(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE kind = $1 AND id = $2`, string(ref.Kind), string(ref.ID),
	)
	o, version, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, trip.ErrNotFound
	}
	return o, version, err
}

func (s *Store) ListAvailableOrders(ctx context.Context) ([]RawOrder, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE status = 'pending' AND worker_id IS NULL
        ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) ListWorkerTrips(ctx context.Context, workerID types.ID) ([]RawOrder, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE worker_id = $1
        ORDER BY accepted_at DESC NULLS LAST`, string(workerID))
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) AcceptOrder(ctx context.Context, ref trip.Ref, workerID types.ID) (RawOrder, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	accepted := ToBackendStatus(ref.Kind, trip.StatusAccepted)
	row := tx.QueryRow(ctx, `
        UPDATE orders
        SET status = $1,
            status_version = status_version + 1,
            worker_id = $2,
            accepted_at = NOW()
        WHERE kind = $3 AND id = $4 AND status = 'pending' AND worker_id IS NULL
        RETURNING `+orderColumns,
		accepted, string(workerID), string(ref.Kind), string(ref.ID),
	)
	o, _, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE kind = $1 AND id = $2)`,
			string(ref.Kind), string(ref.ID)).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, trip.ErrNotFound
		}
		return nil, trip.ErrAlreadyAssigned
	}
	if err != nil {
		return nil, err
	}

	if err := appendEvent(ctx, tx, &Event{
		Ref:        ref,
		FromStatus: string(trip.StatusPending),
		ToStatus:   accepted,
		ActorType:  "worker",
		ActorID:    &workerID,
		CreatedAt:  time.Now(),
	}); err != nil {
		return nil, err
	}
	return o, tx.Commit(ctx)
}

func (s *Store) UpdateTripStatus(ctx context.Context, ref trip.Ref, u StatusUpdate) (RawOrder, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var from string
	var version int
	err = tx.QueryRow(ctx, `SELECT status, status_version FROM orders WHERE kind = $1 AND id = $2`,
		string(ref.Kind), string(ref.ID)).Scan(&from, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trip.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := checkBackendTransition(ref.Kind, from, u.Status); err != nil {
		return nil, err
	}

	completed := MachineStatus(ref.Kind, u.Status) == trip.StatusCompleted
	cancelled := u.Status == string(trip.StatusCancelled)
	row := tx.QueryRow(ctx, `
        UPDATE orders
        SET status = $1,
            status_version = status_version + 1,
            rating = COALESCE($2, rating),
            cancel_reason = COALESCE($3, cancel_reason),
            completed_at = CASE WHEN $4 THEN NOW() ELSE completed_at END,
            cancelled_at = CASE WHEN $5 THEN NOW() ELSE cancelled_at END
        WHERE kind = $6 AND id = $7 AND status = $8 AND status_version = $9
        RETURNING `+orderColumns,
		u.Status,
		u.Rating,
		toStringPtr(types.ID(u.CancelReason)),
		completed,
		cancelled,
		string(ref.Kind),
		string(ref.ID),
		from,
		version,
	)
	o, _, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the compare-and-set to a concurrent writer.
		return nil, fmt.Errorf("%w: %s changed concurrently", trip.ErrInvalidTransition, ref)
	}
	if err != nil {
		return nil, err
	}

	event := &Event{Ref: ref, FromStatus: from, ToStatus: u.Status, ActorType: "worker", CreatedAt: time.Now()}
	if u.ActorID != "" {
		event.ActorID = &u.ActorID
	}
	if err := appendEvent(ctx, tx, event); err != nil {
		return nil, err
	}
	return o, tx.Commit(ctx)
}

func (s *Store) VerifyOTP(ctx context.Context, ref trip.Ref, otp string) error {
	var stored *string
	err := s.db.QueryRow(ctx, `SELECT otp FROM orders WHERE kind = $1 AND id = $2`,
		string(ref.Kind), string(ref.ID)).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return trip.ErrNotFound
	}
	if err != nil {
		return err
	}
	if stored == nil || *stored == "" || *stored != otp {
		return trip.ErrOTPMismatch
	}
	return nil
}

func (s *Store) AppendEarningsLedger(ctx context.Context, e LedgerEntry) error {
	if e.ID == "" {
		e.ID = types.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO earnings_ledger (id, worker_id, order_kind, order_id, amount_cents, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (order_kind, order_id) DO NOTHING`,
		string(e.ID),
		string(e.WorkerID),
		string(e.Ref.Kind),
		string(e.Ref.ID),
		e.Amount.Cents(),
		e.CreatedAt,
	)
	return err
}

// Events returns the audit trail for one order, oldest first.
func (s *Store) Events(ctx context.Context, ref trip.Ref) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, order_id, from_status, to_status, actor_type, actor_id, created_at
        FROM order_state_events
        WHERE order_kind = $1 AND order_id = $2
        ORDER BY id ASC`, string(ref.Kind), string(ref.ID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var orderID string
		var actorID *string
		if err := rows.Scan(&e.ID, &orderID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Ref = trip.Ref{Kind: ref.Kind, ID: types.ID(orderID)}
		if actorID != nil {
			id := types.ID(*actorID)
			e.ActorID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func appendEvent(ctx context.Context, tx pgx.Tx, e *Event) error {
	var actor *string
	if e.ActorID != nil {
		actor = toStringPtr(*e.ActorID)
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO order_state_events (
            order_kind, order_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.Ref.Kind),
		string(e.Ref.ID),
		e.FromStatus,
		e.ToStatus,
		e.ActorType,
		actor,
		e.CreatedAt,
	)
	return err
}

func collectOrders(rows pgx.Rows) ([]RawOrder, error) {
	defer rows.Close()
	out := make([]RawOrder, 0)
	for rows.Next() {
		o, _, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// scanOrder decodes the stored payload and overlays the columns that the
// store owns.
func scanOrder(row pgx.Row) (RawOrder, int, error) {
	var (
		id, kind, status        string
		payload                 []byte
		version                 int
		workerID, cancelReason  *string
		rating                  *float64
		createdAt               time.Time
		acceptedAt, completedAt *time.Time
	)
	if err := row.Scan(&id, &kind, &payload, &status, &version, &workerID, &rating, &cancelReason,
		&createdAt, &acceptedAt, &completedAt); err != nil {
		return nil, 0, err
	}
	o, err := Decode(payload)
	if err != nil {
		return nil, 0, err
	}
	if string(o.Kind()) != kind {
		return nil, 0, fmt.Errorf("%w: payload %s stored as %s", ErrUnknownKind, o.Kind(), kind)
	}
	c := o.Base()
	c.OrderID = types.ID(id)
	c.Status = status
	c.WorkerID = ""
	if workerID != nil {
		c.WorkerID = types.ID(*workerID)
	}
	if rating != nil {
		c.Rating = rating
	}
	if cancelReason != nil {
		c.CancelReason = *cancelReason
	}
	c.CreatedAt = &createdAt
	c.AcceptedAt = acceptedAt
	c.CompletedAt = completedAt
	return o, version, nil
}

func toStringPtr(id types.ID) *string {
	if id == "" {
		return nil
	}
	v := string(id)
	return &v
}
