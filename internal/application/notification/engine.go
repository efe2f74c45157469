package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-guestlist/internal/domain"
	"github.com/go-guestlist/internal/infrastructure/changefeed"
)

type notificationFeed interface {
	WatchNotifications(ctx context.Context, userID string) <-chan changefeed.Set[domain.Notification]
}

type batchDeleter interface {
	BatchDelete(ctx context.Context, ids []string) error
}

type watermarkStore interface {
	Get(ctx context.Context, userID string) (*time.Time, error)
	Advance(ctx context.Context, userID string, at time.Time) error
}

type eventStore interface {
	Get(ctx context.Context, eventID string) (*domain.Event, error)
}

type changeNotifier interface {
	Touch(ctx context.Context, collection string)
}

// EngineDeps wires an Engine. Events, Changes and Logger are optional.
type EngineDeps struct {
	Feed       notificationFeed
	Store      batchDeleter
	Watermarks watermarkStore
	Events     eventStore
	Changes    changeNotifier
	Logger     *slog.Logger
	Location   *time.Location
	Now        func() time.Time
}

// View is one derived state of a user's notifications.
type View struct {
	Received bool
	Records  []domain.Notification
	Groups   []Group
}

// Engine keeps one user's notifications grouped. Run owns all derivation:
// feed deliveries and event-title lookups are applied there, one at a time.
type Engine struct {
	userID     string
	feed       notificationFeed
	store      batchDeleter
	watermarks watermarkStore
	events     eventStore
	changes    changeNotifier
	log        *slog.Logger
	loc        *time.Location
	now        func() time.Time

	gen     atomic.Uint64
	current atomic.Pointer[View]
	updates chan View

	titles sync.Map // event id -> title
}

func NewEngine(userID string, deps EngineDeps) *Engine {
	e := &Engine{
		userID:     userID,
		feed:       deps.Feed,
		store:      deps.Store,
		watermarks: deps.Watermarks,
		events:     deps.Events,
		changes:    deps.Changes,
		log:        deps.Logger,
		loc:        deps.Location,
		now:        deps.Now,
		updates:    make(chan View, 1),
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.current.Store(&View{})
	return e
}

// Updates delivers every new View. Only the latest unread one is kept.
func (e *Engine) Updates() <-chan View { return e.updates }

// Current returns the latest View.
func (e *Engine) Current() View { return *e.current.Load() }

type titlePatch struct {
	gen    uint64
	titles map[string]string
}

// Run consumes the user's notification stream until ctx is done or the
// feed ends, then closes Updates. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	if e.userID == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrBadRequest)
	}
	defer close(e.updates)

	sets := e.feed.WatchNotifications(ctx, e.userID)
	patches := make(chan titlePatch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case set, ok := <-sets:
			if !ok {
				return nil
			}
			gen := e.gen.Add(1)
			view := View{Received: true}
			if set.Err != nil {
				e.log.Warn("notification stream failed", "stage", "stream", "user_id", e.userID, "err", set.Err)
			} else {
				now := e.now()
				for _, n := range set.Items {
					if !n.Expired(now) {
						view.Records = append(view.Records, n)
					}
				}
				view.Groups = GroupRecords(view.Records, now)
				e.applyTitles(view.Groups)
				e.resolveTitles(ctx, gen, view.Groups, patches)
			}
			e.publish(view)
		case p := <-patches:
			if p.gen != e.gen.Load() {
				continue
			}
			for id, title := range p.titles {
				e.titles.Store(id, title)
			}
			view := e.Current()
			view.Groups = append([]Group(nil), view.Groups...)
			e.applyTitles(view.Groups)
			e.publish(view)
		}
	}
}

func (e *Engine) publish(v View) {
	e.current.Store(&v)
	select {
	case e.updates <- v:
		return
	default:
	}
	select {
	case <-e.updates:
	default:
	}
	e.updates <- v
}

func (e *Engine) applyTitles(groups []Group) {
	for i := range groups {
		if t, ok := e.titles.Load(groups[i].Representative.EventIDValue()); ok {
			groups[i].EventTitle = t.(string)
		}
	}
}

// resolveTitles looks up the events referenced by groups that have no
// title yet. It never delays publishing the groups themselves.
func (e *Engine) resolveTitles(ctx context.Context, gen uint64, groups []Group, done chan<- titlePatch) {
	if e.events == nil {
		return
	}
	var ids []string
	seen := make(map[string]struct{})
	for _, g := range groups {
		id := g.Representative.EventIDValue()
		if id == "" {
			continue
		}
		if _, ok := e.titles.Load(id); ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}
	go func() {
		titles := make(map[string]string, len(ids))
		for _, id := range ids {
			ev, err := e.events.Get(ctx, id)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					e.log.Warn("event lookup failed", "stage", "enrich", "event_id", id, "err", err)
				}
				continue
			}
			titles[id] = ev.Title
		}
		select {
		case done <- titlePatch{gen: gen, titles: titles}:
		case <-ctx.Done():
		}
	}()
}

// Sections returns the current groups in recency buckets filtered by
// category.
func (e *Engine) Sections(category domain.NotificationCategory) []Section {
	return Sectioned(e.Current().Groups, category, e.now(), e.loc)
}

// Delete removes a displayed cell. A grouped cell deletes every raw record
// it collapsed in one batch. An id the user does not currently hold is
// ErrNotFound and nothing is deleted.
func (e *Engine) Delete(ctx context.Context, groupID string) ([]string, error) {
	if groupID == "" {
		return nil, fmt.Errorf("notification id is required: %w", domain.ErrBadRequest)
	}
	ids := e.owned(groupID)
	if len(ids) == 0 {
		return nil, fmt.Errorf("notification %s: %w", groupID, domain.ErrNotFound)
	}
	if err := e.store.BatchDelete(ctx, ids); err != nil {
		e.log.Error("notification delete failed", "stage", "write", "user_id", e.userID, "ids", len(ids), "err", err)
		return nil, fmt.Errorf("%w: delete notifications", domain.ErrUnavailable)
	}
	if e.changes != nil {
		e.changes.Touch(ctx, domain.NotificationCollection(e.userID))
	}
	return ids, nil
}

// owned resolves id against the user's current view: a group id yields
// every member, a raw record id yields itself. Anything else is nil.
func (e *Engine) owned(id string) []string {
	cur := e.Current()
	for _, g := range cur.Groups {
		if g.ID() == id {
			return g.MemberIDs
		}
	}
	for _, n := range cur.Records {
		if n.NotificationID == id && n.UserID == e.userID {
			return []string{id}
		}
	}
	return nil
}

// UnreadCount counts current records strictly newer than the last-viewed
// watermark. With no watermark every record is unread.
func (e *Engine) UnreadCount(ctx context.Context) (int, error) {
	mark, err := e.watermarks.Get(ctx, e.userID)
	if err != nil {
		e.log.Warn("watermark lookup failed", "stage", "lookup", "user_id", e.userID, "err", err)
		return 0, fmt.Errorf("%w: watermark", domain.ErrUnavailable)
	}
	return CountUnread(e.Current().Records, mark), nil
}

// MarkViewed advances the watermark to now.
func (e *Engine) MarkViewed(ctx context.Context) error {
	if err := e.watermarks.Advance(ctx, e.userID, e.now()); err != nil {
		e.log.Warn("watermark advance failed", "stage", "write", "user_id", e.userID, "err", err)
		return fmt.Errorf("%w: watermark", domain.ErrUnavailable)
	}
	return nil
}

// CountUnread counts records created strictly after mark, compared at
// whole-second resolution. A nil mark counts everything.
func CountUnread(records []domain.Notification, mark *time.Time) int {
	if mark == nil {
		return len(records)
	}
	cutoff := mark.Unix()
	n := 0
	for _, r := range records {
		if r.CreatedAt.Unix() > cutoff {
			n++
		}
	}
	return n
}
