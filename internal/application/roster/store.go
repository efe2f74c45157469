// Package roster keeps one event's guestlist as a live, derived view.
//
// A Store owns a single goroutine per observed event. Upstream snapshots,
// filter changes and university enrichment results all arrive on channels
// into that goroutine, which recomputes the view from the latest complete
// guest set and publishes an immutable Snapshot. Nothing else mutates view
// state.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/go-guestlist/internal/domain"
	"github.com/go-guestlist/internal/infrastructure/changefeed"
	"github.com/go-guestlist/internal/pkg/fuzzy"
)

type guestFeed interface {
	WatchGuests(ctx context.Context, eventID string) <-chan changefeed.Set[domain.Guest]
}

type universityResolver interface {
	Cached(id string) (domain.University, bool)
	Resolve(ctx context.Context, ids []string) (map[string]domain.University, error)
}

type StoreDeps struct {
	Feed         guestFeed
	Universities universityResolver
	Logger       *slog.Logger
	// InitialFilter is the status sectioned before SetStatusFilter is called.
	// Defaults to Invited.
	InitialFilter domain.GuestStatus
}

type Store struct {
	feed     guestFeed
	resolver universityResolver
	log      *slog.Logger

	filter  atomic.Value // domain.GuestStatus
	gen     atomic.Uint64
	current atomic.Pointer[Snapshot]

	mu     sync.Mutex
	cancel context.CancelFunc
	wake   chan struct{}
}

func NewStore(deps StoreDeps) *Store {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	filter := deps.InitialFilter
	if !filter.Valid() {
		filter = domain.StatusInvited
	}
	s := &Store{feed: deps.Feed, resolver: deps.Universities, log: log}
	s.filter.Store(filter)
	return s
}

// Observe subscribes to eventID's guestlist and returns a stream of
// snapshots. The first snapshot is always StateLoading. Observing a new
// event ends the previous subscription and discards its in-flight
// enrichment. The channel is closed when ctx is done, the store is
// closed, or the upstream feed ends.
//
// The stream holds only the latest snapshot: a slow reader skips
// intermediate ones but always sees the most recent.
func (s *Store) Observe(ctx context.Context, eventID string) (<-chan Snapshot, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required: %w", domain.ErrBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	gen := s.gen.Add(1)
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wake = make(chan struct{}, 1)
	s.current.Store(nil)

	out := make(chan Snapshot, 1)
	sets := s.feed.WatchGuests(runCtx, eventID)
	go s.run(runCtx, gen, eventID, sets, s.wake, out)
	return out, nil
}

// SetStatusFilter changes which status is sectioned. The current guest set
// is recomputed without reloading it.
func (s *Store) SetStatusFilter(status domain.GuestStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q: %w", status, domain.ErrBadRequest)
	}
	s.filter.Store(status)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wake != nil {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// StatusFilter returns the active filter.
func (s *Store) StatusFilter() domain.GuestStatus {
	return s.filter.Load().(domain.GuestStatus)
}

// Current returns the latest published snapshot of the observed event.
func (s *Store) Current() (Snapshot, bool) {
	snap := s.current.Load()
	if snap == nil {
		return Snapshot{}, false
	}
	return *snap, true
}

// Search matches query against guest names across every status, not just
// the filtered one. An empty query returns the whole roster.
func (s *Store) Search(query string) []domain.Guest {
	snap, ok := s.Current()
	if !ok {
		return nil
	}
	return fuzzy.Filter(fuzzy.New(query), snap.Guests, func(g domain.Guest) string { return g.Name })
}

// Close ends the current subscription.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

type enrichment struct {
	gen   uint64
	ids   []string
	found map[string]domain.University
}

func (s *Store) run(ctx context.Context, gen uint64, eventID string, sets <-chan changefeed.Set[domain.Guest], wake <-chan struct{}, out chan Snapshot) {
	defer close(out)

	in := input{eventID: eventID, resolved: make(map[string]domain.University)}
	inflight := make(map[string]struct{})
	enriched := make(chan enrichment)

	publish := func() {
		in.filter = s.StatusFilter()
		snap := derive(in)
		if s.gen.Load() == gen {
			s.current.Store(&snap)
		}
		offer(out, snap)
	}

	publish()
	for {
		select {
		case <-ctx.Done():
			return

		case set, ok := <-sets:
			if !ok {
				return
			}
			in.received = true
			if set.Err != nil {
				s.log.Warn("guestlist stream failed", "stage", "stream", "event_id", eventID, "err", set.Err)
				in.failed = true
				in.guests = nil
			} else {
				in.failed = false
				in.guests = set.Items
				s.enrich(ctx, gen, &in, inflight, enriched)
			}
			publish()

		case <-wake:
			publish()

		case e := <-enriched:
			for _, id := range e.ids {
				delete(inflight, id)
			}
			if e.gen != s.gen.Load() {
				continue
			}
			maps.Copy(in.resolved, e.found)
			publish()
		}
	}
}

// enrich patches cached universities in immediately and starts one batch
// resolution for the rest. Results come back on done and are applied by the
// run loop, so a slow directory never delays publishing the guests.
func (s *Store) enrich(ctx context.Context, gen uint64, in *input, inflight map[string]struct{}, done chan<- enrichment) {
	if s.resolver == nil {
		return
	}
	var ids []string
	seen := make(map[string]struct{})
	for _, g := range in.guests {
		id := g.UniversityID
		if id == "" || id == domain.NoUniversityID {
			continue
		}
		if _, ok := in.resolved[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := s.resolver.Cached(id); ok {
			in.resolved[id] = u
			continue
		}
		if _, ok := inflight[id]; ok {
			continue
		}
		inflight[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}

	go func() {
		// Errors are logged by the resolver; unresolved guests keep a nil University.
		found, _ := s.resolver.Resolve(ctx, ids)
		select {
		case done <- enrichment{gen: gen, ids: ids, found: found}:
		case <-ctx.Done():
		}
	}()
}

// offer replaces any unread snapshot in out with snap. Only the run loop
// sends on out, so the send after draining cannot block.
func offer(out chan Snapshot, snap Snapshot) {
	select {
	case out <- snap:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- snap
}
