// Package university resolves university ids to display records through a
// process-wide cache.
package university

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-guestlist/internal/domain"
)

type batchFetcher interface {
	BatchGet(ctx context.Context, ids []string) ([]domain.University, error)
}

// Directory caches universities by id for the life of the process.
// Records are immutable once fetched, so concurrent resolutions of
// overlapping id sets may race: the last write for an id wins and every
// writer stores the same value.
type Directory struct {
	fetcher batchFetcher
	log     *slog.Logger
	cache   sync.Map // id -> domain.University
}

func NewDirectory(fetcher batchFetcher, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{fetcher: fetcher, log: log}
}

// Cached returns the university for id if it has been resolved before.
func (d *Directory) Cached(id string) (domain.University, bool) {
	v, ok := d.cache.Load(id)
	if !ok {
		return domain.University{}, false
	}
	return v.(domain.University), true
}

// Resolve returns every university it could find for ids, fetching the
// uncached ones in a single batch. It is best effort: a fetch error is
// logged and the cached subset is returned alongside it.
func (d *Directory) Resolve(ctx context.Context, ids []string) (map[string]domain.University, error) {
	found := make(map[string]domain.University, len(ids))
	var missing []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" || id == domain.NoUniversityID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := d.Cached(id); ok {
			found[id] = u
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return found, nil
	}

	fetched, err := d.fetcher.BatchGet(ctx, missing)
	if err != nil {
		d.log.Warn("university batch fetch failed", "stage", "enrich", "ids", len(missing), "err", err)
		return found, err
	}
	for _, u := range fetched {
		d.cache.Store(u.ID, u)
		found[u.ID] = u
	}
	return found, nil
}
