// README: In-memory order backend for local runs, the bench and tests.
package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type memRecord struct {
	payload     []byte
	status      string
	version     int
	workerID    types.ID
	otp         string
	rating      *float64
	cancel      string
	createdAt   time.Time
	acceptedAt  *time.Time
	completedAt *time.Time
}

// MemoryStore keeps encoded payloads so every read hands out a fresh copy.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	orders  map[trip.Ref]*memRecord
	events  []Event
	ledger  map[trip.Ref]LedgerEntry
	eventID int64
}

var _ Backend = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:    time.Now,
		orders: make(map[trip.Ref]*memRecord),
		ledger: make(map[trip.Ref]LedgerEntry),
	}
}

// Create inserts a pending order. otp may be empty.
func (m *MemoryStore) Create(_ context.Context, o RawOrder, otp string) error {
	payload, err := Encode(o)
	if err != nil {
		return err
	}
	c := o.Base()
	ref := trip.Ref{Kind: o.Kind(), ID: c.ID()}
	if ref.ID == "" {
		return fmt.Errorf("create order: missing id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[ref]; exists {
		return fmt.Errorf("create order %s: %w", ref, ErrExists)
	}
	status := c.Status
	if status == "" {
		status = string(trip.StatusPending)
	}
	createdAt := m.now()
	if c.CreatedAt != nil {
		createdAt = *c.CreatedAt
	}
	m.orders[ref] = &memRecord{
		payload:   payload,
		status:    status,
		workerID:  c.WorkerID,
		otp:       otp,
		createdAt: createdAt,
	}
	return nil
}

// Get returns the order and its status version.
func (m *MemoryStore) Get(_ context.Context, ref trip.Ref) (RawOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.orders[ref]
	if !ok {
		return nil, 0, trip.ErrNotFound
	}
	o, err := m.decode(ref, r)
	return o, r.version, err
}

func (m *MemoryStore) ListAvailableOrders(context.Context) ([]RawOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.filter(func(r *memRecord) bool {
		return r.status == string(trip.StatusPending) && r.workerID == ""
	})
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].rec.createdAt.Before(recs[j].rec.createdAt)
	})
	return m.materialize(recs)
}

func (m *MemoryStore) ListWorkerTrips(_ context.Context, workerID types.ID) ([]RawOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.filter(func(r *memRecord) bool { return r.workerID == workerID })
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].rec.acceptedAt, recs[j].rec.acceptedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return m.materialize(recs)
}

func (m *MemoryStore) AcceptOrder(_ context.Context, ref trip.Ref, workerID types.ID) (RawOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.orders[ref]
	if !ok {
		return nil, trip.ErrNotFound
	}
	if r.status != string(trip.StatusPending) || r.workerID != "" {
		return nil, trip.ErrAlreadyAssigned
	}
	now := m.now()
	accepted := ToBackendStatus(ref.Kind, trip.StatusAccepted)
	m.appendEvent(ref, r.status, accepted, workerID, now)
	r.status = accepted
	r.version++
	r.workerID = workerID
	r.acceptedAt = &now
	return m.decode(ref, r)
}

func (m *MemoryStore) UpdateTripStatus(_ context.Context, ref trip.Ref, u StatusUpdate) (RawOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.orders[ref]
	if !ok {
		return nil, trip.ErrNotFound
	}
	if err := checkBackendTransition(ref.Kind, r.status, u.Status); err != nil {
		return nil, err
	}
	now := m.now()
	m.appendEvent(ref, r.status, u.Status, u.ActorID, now)
	r.status = u.Status
	r.version++
	if u.Rating != nil {
		v := *u.Rating
		r.rating = &v
	}
	if u.CancelReason != "" {
		r.cancel = u.CancelReason
	}
	if MachineStatus(ref.Kind, u.Status) == trip.StatusCompleted {
		r.completedAt = &now
	}
	return m.decode(ref, r)
}

func (m *MemoryStore) VerifyOTP(_ context.Context, ref trip.Ref, otp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.orders[ref]
	if !ok {
		return trip.ErrNotFound
	}
	if r.otp == "" || r.otp != otp {
		return trip.ErrOTPMismatch
	}
	return nil
}

func (m *MemoryStore) AppendEarningsLedger(_ context.Context, e LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.ledger[e.Ref]; exists {
		return nil
	}
	if e.ID == "" {
		e.ID = types.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	m.ledger[e.Ref] = e
	return nil
}

// LedgerEntries returns every recorded earning, in no particular order.
func (m *MemoryStore) LedgerEntries() []LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LedgerEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		out = append(out, e)
	}
	return out
}

func (m *MemoryStore) Events(_ context.Context, ref trip.Ref) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Ref == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

type refRecord struct {
	ref trip.Ref
	rec *memRecord
}

func (m *MemoryStore) filter(keep func(*memRecord) bool) []refRecord {
	out := make([]refRecord, 0)
	for ref, r := range m.orders {
		if keep(r) {
			out = append(out, refRecord{ref: ref, rec: r})
		}
	}
	// Map iteration is random; fix a base order before the caller's stable sort.
	sort.Slice(out, func(i, j int) bool { return out[i].ref.String() < out[j].ref.String() })
	return out
}

func (m *MemoryStore) materialize(recs []refRecord) ([]RawOrder, error) {
	out := make([]RawOrder, 0, len(recs))
	for _, rr := range recs {
		o, err := m.decode(rr.ref, rr.rec)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *MemoryStore) decode(ref trip.Ref, r *memRecord) (RawOrder, error) {
	o, err := Decode(r.payload)
	if err != nil {
		return nil, err
	}
	c := o.Base()
	c.OrderID = ref.ID
	c.Status = r.status
	c.WorkerID = r.workerID
	if r.rating != nil {
		v := *r.rating
		c.Rating = &v
	}
	if r.cancel != "" {
		c.CancelReason = r.cancel
	}
	createdAt := r.createdAt
	c.CreatedAt = &createdAt
	c.AcceptedAt = copyTime(r.acceptedAt)
	c.CompletedAt = copyTime(r.completedAt)
	return o, nil
}

func (m *MemoryStore) appendEvent(ref trip.Ref, from, to string, actor types.ID, at time.Time) {
	m.eventID++
	e := Event{ID: m.eventID, Ref: ref, FromStatus: from, ToStatus: to, ActorType: "worker", CreatedAt: at}
	if actor != "" {
		id := actor
		e.ActorID = &id
	}
	m.events = append(m.events, e)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
