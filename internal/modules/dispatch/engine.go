// README: Dispatch engine: cached queries, accept/transition orchestration, invalidation and events.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tripengine/internal/cache"
	"tripengine/internal/messaging"
	"tripengine/internal/modules/matching"
	"tripengine/internal/modules/order"
	"tripengine/internal/modules/stats"
	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

var (
	ErrNotEligible = errors.New("order kind not served by worker capability")
	ErrNotOwner    = errors.New("trip belongs to another worker")
)

// Listing is the available-orders view for one worker. Stale is set when the
// backend could not be reached; Trips may then be empty or an older snapshot.
type Listing struct {
	Trips     []trip.Trip `json:"trips"`
	Stale     bool        `json:"stale"`
	Online    bool        `json:"online"`
	FetchedAt time.Time   `json:"fetched_at"`
}

type Deps struct {
	Backend    order.Backend
	Normalizer order.Normalizer
	Presence   matching.PresenceStore
	Publisher  messaging.Publisher
	CacheStore cache.Store
	Ledger     trip.Ledger
}

type Options struct {
	TTL            time.Duration
	StaleRetention time.Duration
	CallTimeout    time.Duration
	Policy         trip.Policy
	Rating         trip.RatingStrategy
	// Location is used for earnings periods. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

type Engine struct {
	backend    order.Backend
	normalizer order.Normalizer
	presence   matching.PresenceStore
	publisher  messaging.Publisher
	trips      *trip.Service

	available   *cache.Cache[[]trip.Trip]
	workerTrips *cache.Cache[[]trip.Trip]
	stats       *cache.Cache[stats.Stats]

	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func New(deps Deps, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if deps.Presence == nil {
		deps.Presence = matching.NewMemoryPresence()
	}
	if deps.Publisher == nil {
		deps.Publisher = messaging.NewLogPublisher(opts.Logger)
	}
	if deps.CacheStore == nil {
		deps.CacheStore = cache.NewMemoryStore()
	}

	backend := tracedBackend{next: deps.Backend}
	cacheOpts := cache.Options{
		TTL:            opts.TTL,
		StaleRetention: opts.StaleRetention,
		FetchTimeout:   opts.CallTimeout,
		Now:            opts.Now,
		Logger:         opts.Logger,
	}
	e := &Engine{
		backend:     backend,
		normalizer:  deps.Normalizer,
		presence:    deps.Presence,
		publisher:   deps.Publisher,
		available:   cache.New[[]trip.Trip](deps.CacheStore, cacheOpts),
		workerTrips: cache.New[[]trip.Trip](deps.CacheStore, cacheOpts),
		stats:       cache.New[stats.Stats](deps.CacheStore, cacheOpts),
		loc:         opts.Location,
		now:         opts.Now,
		logger:      opts.Logger.With("component", "dispatch"),
	}
	e.trips = trip.NewService(gateway{backend: backend, normalizer: deps.Normalizer}, trip.Options{
		Policy:      opts.Policy,
		Rating:      opts.Rating,
		Ledger:      deps.Ledger,
		CallTimeout: opts.CallTimeout,
		Now:         opts.Now,
		Logger:      opts.Logger,
	})
	e.trips.OnChange(e.onChange)
	return e
}

// AvailableOrders lists pending orders the worker may accept. Offline workers
// get an empty list. A backend failure yields an empty stale listing rather
// than an error.
func (e *Engine) AvailableOrders(ctx context.Context, s Session) (Listing, error) {
	w := s.Worker
	online, err := e.presence.IsOnline(ctx, w.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "presence lookup failed", "worker_id", w.ID, "err", err)
		online = true
	}
	if !online {
		return Listing{Trips: []trip.Trip{}}, nil
	}

	res, err := e.available.Get(ctx, availableKey(w.Capability, w.ID), 0, func(ctx context.Context) ([]trip.Trip, error) {
		raws, err := e.backend.ListAvailableOrders(ctx)
		if err != nil {
			return nil, err
		}
		return matching.Route(e.normalizer.NormalizeAll(raws), w.Capability), nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Listing{}, ctx.Err()
		}
		e.logger.WarnContext(ctx, "available orders unavailable", "worker_id", w.ID, "err", err)
		return Listing{Trips: []trip.Trip{}, Stale: true, Online: true}, nil
	}
	trips := res.Value
	if trips == nil {
		trips = []trip.Trip{}
	}
	return Listing{Trips: trips, Stale: res.Stale, Online: true, FetchedAt: res.FetchedAt}, nil
}

// Accept claims an order for the session's worker.
func (e *Engine) Accept(ctx context.Context, s Session, ref trip.Ref) (trip.Trip, error) {
	if !s.Worker.Capability.Admits(ref.Kind) {
		return trip.Trip{}, fmt.Errorf("%w: %s for %s", ErrNotEligible, ref.Kind, s.Worker.Capability)
	}
	return e.trips.Accept(ctx, trip.AcceptCommand{Ref: ref, WorkerID: s.Worker.ID})
}

// Transition moves one of the worker's trips. Trips accepted before a restart
// are picked up from the backend on first use.
func (e *Engine) Transition(ctx context.Context, s Session, ref trip.Ref, to trip.Status, p trip.Payload) (trip.Trip, error) {
	cur, err := e.trips.Get(ref)
	if errors.Is(err, trip.ErrNotFound) {
		known, rerr := e.rehydrate(ctx, s.Worker.ID)
		if rerr != nil {
			e.logger.WarnContext(ctx, "rehydrate failed", "worker_id", s.Worker.ID, "err", rerr)
		}
		cur, err = e.trips.Get(ref)
		if errors.Is(err, trip.ErrNotFound) {
			for _, t := range known {
				if t.Ref() == ref && t.Status.Terminal() {
					return trip.Trip{}, trip.ErrTripClosed
				}
			}
		}
	}
	if err != nil {
		return trip.Trip{}, err
	}
	if cur.WorkerID != s.Worker.ID {
		return trip.Trip{}, ErrNotOwner
	}
	p.Actor = s.Worker.ID
	return e.trips.Transition(ctx, trip.TransitionCommand{Ref: ref, To: to, Payload: p})
}

// ActiveTrips returns the worker's in-progress trips, oldest first.
func (e *Engine) ActiveTrips(ctx context.Context, s Session) ([]trip.Trip, error) {
	if _, err := e.rehydrate(ctx, s.Worker.ID); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.WarnContext(ctx, "rehydrate failed", "worker_id", s.Worker.ID, "err", err)
	}
	return e.trips.Active(s.Worker.ID), nil
}

// Stats aggregates the worker's trips. Zero stats are returned when the
// backend is unreachable and nothing is cached.
func (e *Engine) Stats(ctx context.Context, s Session) (stats.Stats, error) {
	res, err := e.stats.Get(ctx, statsKey(s.Worker.ID), 0, func(ctx context.Context) (stats.Stats, error) {
		trips, err := e.fetchWorkerTrips(ctx, s.Worker.ID)
		if err != nil {
			return stats.Stats{}, err
		}
		return stats.Aggregate(trips), nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return stats.Stats{}, ctx.Err()
		}
		e.logger.WarnContext(ctx, "stats unavailable", "worker_id", s.Worker.ID, "err", err)
		return stats.Stats{}, nil
	}
	return res.Value, nil
}

func (e *Engine) Earnings(ctx context.Context, s Session) (stats.EarningsSummary, error) {
	trips, err := e.cachedWorkerTrips(ctx, s.Worker.ID)
	if err != nil {
		if ctx.Err() != nil {
			return stats.EarningsSummary{}, ctx.Err()
		}
		e.logger.WarnContext(ctx, "earnings unavailable", "worker_id", s.Worker.ID, "err", err)
		trips = nil
	}
	return stats.Earnings(trips, e.now(), e.loc), nil
}

func (e *Engine) History(ctx context.Context, s Session, f stats.Filter) ([]trip.Trip, error) {
	trips, err := e.cachedWorkerTrips(ctx, s.Worker.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.WarnContext(ctx, "history unavailable", "worker_id", s.Worker.ID, "err", err)
		return []trip.Trip{}, nil
	}
	return stats.History(trips, f), nil
}

// SetAvailability toggles the worker's presence.
func (e *Engine) SetAvailability(ctx context.Context, s Session, online bool) error {
	w := s.Worker
	var err error
	typ := messaging.EventWorkerOnline
	if online {
		err = e.presence.SetOnline(ctx, w.ID, w.Capability)
	} else {
		typ = messaging.EventWorkerOffline
		err = e.presence.SetOffline(ctx, w.ID)
	}
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	if err := e.available.InvalidateKey(ctx, availableKey(w.Capability, w.ID)); err != nil {
		e.logger.WarnContext(ctx, "cache invalidation failed", "worker_id", w.ID, "err", err)
	}
	e.publish(ctx, messaging.NewEvent(typ, w.ID, e.now()))
	return nil
}

// Sweep drops cache entries past their stale retention.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	return e.available.Sweep(ctx)
}

func (e *Engine) cachedWorkerTrips(ctx context.Context, workerID types.ID) ([]trip.Trip, error) {
	res, err := e.workerTrips.Get(ctx, historyKey(workerID), 0, func(ctx context.Context) ([]trip.Trip, error) {
		return e.fetchWorkerTrips(ctx, workerID)
	})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (e *Engine) fetchWorkerTrips(ctx context.Context, workerID types.ID) ([]trip.Trip, error) {
	raws, err := e.backend.ListWorkerTrips(ctx, workerID)
	if err != nil {
		return nil, err
	}
	trips := e.normalizer.NormalizeAll(raws)
	for i := range trips {
		// Normalized statuses fold accepted into active; recover the machine state.
		trips[i].Status = order.MachineStatus(trips[i].OrderKind, trips[i].RawStatus)
	}
	return trips, nil
}

// rehydrate adopts the worker's in-progress backend trips the service does
// not track yet. It returns everything the backend listed.
func (e *Engine) rehydrate(ctx context.Context, workerID types.ID) ([]trip.Trip, error) {
	trips, err := e.fetchWorkerTrips(ctx, workerID)
	if err != nil {
		return nil, err
	}
	for _, t := range trips {
		if e.trips.Adopt(t) {
			e.logger.InfoContext(ctx, "trip adopted", "trip", t.Ref().String(), "worker_id", workerID, "status", t.Status)
		}
	}
	return trips, nil
}

func (e *Engine) onChange(ctx context.Context, c trip.Change) {
	for _, capability := range matching.Capabilities {
		if !capability.Admits(c.Ref.Kind) {
			continue
		}
		if err := e.available.Invalidate(ctx, availablePrefix(capability)); err != nil {
			e.logger.WarnContext(ctx, "cache invalidation failed", "prefix", availablePrefix(capability), "err", err)
		}
	}

	ev := messaging.NewEvent(messaging.EventTripTransitioned, c.WorkerID, e.now())
	ev.TripID = c.Ref.ID
	ev.Kind = c.Ref.Kind
	ev.From = c.From
	ev.Status = c.To
	switch {
	case c.Lost:
		ev.Type = messaging.EventAcceptLost
	case c.From == trip.StatusPending:
		ev.Type = messaging.EventTripAccepted
	}
	if !c.Lost {
		ev.Fare = c.Trip.Fare
		if err := e.workerTrips.InvalidateKey(ctx, historyKey(c.WorkerID)); err != nil {
			e.logger.WarnContext(ctx, "cache invalidation failed", "key", historyKey(c.WorkerID), "err", err)
		}
		if err := e.stats.InvalidateKey(ctx, statsKey(c.WorkerID)); err != nil {
			e.logger.WarnContext(ctx, "cache invalidation failed", "key", statsKey(c.WorkerID), "err", err)
		}
	}
	e.publish(ctx, ev)
}

func (e *Engine) publish(ctx context.Context, ev messaging.Event) {
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.ErrorContext(ctx, "publish event failed", "type", ev.Type, "trip_id", ev.TripID, "err", err)
	}
}
