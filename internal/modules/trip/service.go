// README: Trip service owns the lifecycle of accepted trips and applies backend results.
package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tripengine/internal/types"
)

var (
	ErrNotFound            = errors.New("trip not found")
	ErrAlreadyAssigned     = errors.New("order already assigned")
	ErrInvalidTransition   = errors.New("invalid trip status transition")
	ErrOTPRequired         = errors.New("otp required")
	ErrOTPMismatch         = errors.New("otp mismatch")
	ErrInvalidCancelReason = errors.New("invalid cancel reason")
	ErrTripClosed          = errors.New("trip is closed")
	ErrBadRequest          = errors.New("bad request")
)

// Gateway is the order backend as seen by the state machine. Implementations
// return trips already normalized.
type Gateway interface {
	Accept(ctx context.Context, ref Ref, workerID types.ID) (Trip, error)
	UpdateStatus(ctx context.Context, ref Ref, to Status, p Payload) (Trip, error)
	VerifyOTP(ctx context.Context, ref Ref, otp string) error
}

// Ledger receives completed-trip earnings. Record must not block.
type Ledger interface {
	Record(workerID types.ID, ref Ref, amount types.Money)
}

type Payload struct {
	OTP          string
	CancelReason CancelReason
	Rating       *float64
	// Actor is recorded in the backend audit trail.
	Actor types.ID
}

type AcceptCommand struct {
	Ref      Ref
	WorkerID types.ID
}

type TransitionCommand struct {
	Ref     Ref
	To      Status
	Payload Payload
}

// Change describes an applied backend outcome. Lost is set when the backend
// reported the order as taken by someone else.
type Change struct {
	Ref      Ref
	WorkerID types.ID
	From     Status
	To       Status
	Trip     Trip
	Lost     bool
}

type ChangeFunc func(ctx context.Context, c Change)

type Options struct {
	Policy      Policy
	Rating      RatingStrategy
	Ledger      Ledger
	CallTimeout time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

type Service struct {
	gateway     Gateway
	ledger      Ledger
	policy      Policy
	rating      RatingStrategy
	callTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu        sync.Mutex
	trips     map[Ref]*entry
	observers []ChangeFunc
}

// entry.mu serializes transitions on one trip. entry.trip is guarded by
// Service.mu so readers never wait on a backend call.
type entry struct {
	mu   sync.Mutex
	trip Trip
}

func NewService(gateway Gateway, opts Options) *Service {
	if opts.Policy.DirectComplete == nil && opts.Policy.OTPKinds == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.Rating == nil {
		opts.Rating = DefaultRating()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		gateway:     gateway,
		ledger:      opts.Ledger,
		policy:      opts.Policy,
		rating:      opts.Rating,
		callTimeout: opts.CallTimeout,
		now:         opts.Now,
		logger:      opts.Logger.With("component", "trip_service"),
		trips:       make(map[Ref]*entry),
	}
}

// OnChange registers fn to run after every applied backend outcome. Observers
// run even when the caller has stopped waiting.
func (s *Service) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (Trip, error) {
	if cmd.Ref.ID == "" || cmd.WorkerID == "" || !cmd.Ref.Kind.Valid() {
		return Trip{}, ErrBadRequest
	}
	if _, ok := s.lookup(cmd.Ref); ok {
		return Trip{}, ErrAlreadyAssigned
	}

	return s.detached(ctx, func(ctx context.Context) (Trip, error) {
		accepted, err := s.gateway.Accept(ctx, cmd.Ref, cmd.WorkerID)
		if errors.Is(err, ErrAlreadyAssigned) {
			s.notify(ctx, Change{Ref: cmd.Ref, WorkerID: cmd.WorkerID, From: StatusPending, To: StatusPending, Lost: true})
			return Trip{}, err
		}
		if err != nil {
			return Trip{}, err
		}

		accepted.ID = cmd.Ref.ID
		accepted.OrderKind = cmd.Ref.Kind
		accepted.Status = StatusAccepted
		accepted.WorkerID = cmd.WorkerID
		if accepted.AcceptedAt == nil {
			now := s.now()
			accepted.AcceptedAt = &now
		}

		s.mu.Lock()
		s.trips[cmd.Ref] = &entry{trip: accepted.Clone()}
		s.mu.Unlock()

		s.logger.Info("trip accepted", "trip", cmd.Ref.String(), "worker_id", cmd.WorkerID)
		s.notify(ctx, Change{Ref: cmd.Ref, WorkerID: cmd.WorkerID, From: StatusPending, To: StatusAccepted, Trip: accepted.Clone()})
		return accepted.Clone(), nil
	})
}

// Transition moves a live trip to cmd.To. Moves on the same trip are applied
// one at a time. A rejected move leaves the trip untouched.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (Trip, error) {
	e, ok := s.lookup(cmd.Ref)
	if !ok {
		return Trip{}, ErrNotFound
	}

	return s.detached(ctx, func(ctx context.Context) (Trip, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		s.mu.Lock()
		cur := e.trip
		s.mu.Unlock()
		if cur.Status.Terminal() {
			return Trip{}, ErrTripClosed
		}
		if !s.policy.CanTransition(cur.OrderKind, cur.Status, cmd.To) {
			s.logger.Warn("rejected transition", "trip", cmd.Ref.String(), "from", cur.Status, "to", cmd.To)
			return Trip{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, cmd.To)
		}
		if cmd.To == StatusCancelled && !cmd.Payload.CancelReason.Valid() {
			return Trip{}, ErrInvalidCancelReason
		}
		if cur.Status == StatusAccepted && cmd.To == StatusActive && s.policy.RequiresOTP(cur) {
			if cmd.Payload.OTP == "" {
				return Trip{}, ErrOTPRequired
			}
			if err := s.gateway.VerifyOTP(ctx, cmd.Ref, cmd.Payload.OTP); err != nil {
				return Trip{}, err
			}
		}

		if cmd.To == StatusCompleted {
			cmd.Payload.Rating = s.resolveRating(cur, cmd.Payload.Rating)
		}

		updated, err := s.gateway.UpdateStatus(ctx, cmd.Ref, cmd.To, cmd.Payload)
		if err != nil {
			return Trip{}, err
		}

		next := s.apply(cur, updated, cmd)
		s.mu.Lock()
		e.trip = next
		if next.Status.Terminal() && s.trips[cmd.Ref] == e {
			delete(s.trips, cmd.Ref)
		}
		s.mu.Unlock()
		if next.Status == StatusCompleted && s.ledger != nil {
			s.ledger.Record(next.WorkerID, cmd.Ref, next.Fare)
		}

		s.logger.Info("trip transitioned", "trip", cmd.Ref.String(), "from", cur.Status, "to", next.Status)
		s.notify(ctx, Change{Ref: cmd.Ref, WorkerID: next.WorkerID, From: cur.Status, To: next.Status, Trip: next.Clone()})
		return next.Clone(), nil
	})
}

// Adopt registers a trip that is already in progress on the backend, for
// example after a restart. It returns false if the trip is already tracked
// or not in progress.
func (s *Service) Adopt(t Trip) bool {
	if !t.Status.InProgress() || t.WorkerID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[t.Ref()]; ok {
		return false
	}
	s.trips[t.Ref()] = &entry{trip: t.Clone()}
	return true
}

func (s *Service) Get(ref Ref) (Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.trips[ref]
	if !ok {
		return Trip{}, ErrNotFound
	}
	return e.trip.Clone(), nil
}

// Active returns the worker's live trips, oldest acceptance first.
func (s *Service) Active(workerID types.ID) []Trip {
	s.mu.Lock()
	out := make([]Trip, 0)
	for _, e := range s.trips {
		if e.trip.WorkerID == workerID && !e.trip.Status.Terminal() {
			out = append(out, e.trip.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return acceptedBefore(out[i], out[j])
	})
	return out
}

func (s *Service) apply(cur, updated Trip, cmd TransitionCommand) Trip {
	next := cur.Clone()
	next.Status = cmd.To
	if updated.RawStatus != "" {
		next.RawStatus = updated.RawStatus
	}
	if updated.Fare > 0 {
		next.Fare = updated.Fare
	}
	switch cmd.To {
	case StatusCompleted:
		now := s.now()
		next.CompletedAt = &now
		switch {
		case cmd.Payload.Rating != nil:
			r := *cmd.Payload.Rating
			next.Rating = &r
		case updated.Rating != nil:
			r := *updated.Rating
			next.Rating = &r
		}
	case StatusCancelled:
		next.CancelReason = cmd.Payload.CancelReason
	}
	return next
}

// resolveRating picks the rating sent to the backend on completion: the
// caller's, then one the trip already carries, then the strategy's.
func (s *Service) resolveRating(cur Trip, given *float64) *float64 {
	var r float64
	switch {
	case given != nil:
		r = *given
	case cur.Rating != nil:
		r = *cur.Rating
	default:
		r = s.rating.Rate(cur)
	}
	return &r
}

func (s *Service) lookup(ref Ref) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.trips[ref]
	return e, ok
}

func (s *Service) notify(ctx context.Context, c Change) {
	s.mu.Lock()
	observers := append([]ChangeFunc(nil), s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(ctx, c)
	}
}

type outcome struct {
	trip Trip
	err  error
}

// detached runs fn on a context that survives the caller's cancellation, so
// a backend response that arrives late is still applied. The caller gets
// ctx.Err() if it stops waiting first.
func (s *Service) detached(ctx context.Context, fn func(context.Context) (Trip, error)) (Trip, error) {
	done := make(chan outcome, 1)
	go func() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.callTimeout)
		defer cancel()
		t, err := fn(callCtx)
		done <- outcome{trip: t, err: err}
	}()

	select {
	case o := <-done:
		return o.trip, o.err
	case <-ctx.Done():
		return Trip{}, ctx.Err()
	}
}

func acceptedBefore(a, b Trip) bool {
	switch {
	case a.AcceptedAt == nil:
		return false
	case b.AcceptedAt == nil:
		return true
	default:
		return a.AcceptedAt.Before(*b.AcceptedAt)
	}
}
