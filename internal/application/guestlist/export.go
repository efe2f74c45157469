package guestlist

import (
	"bytes"
	"cmp"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/go-guestlist/internal/domain"
	"github.com/go-guestlist/internal/pkg/id"
)

type guestLister interface {
	ListByEvent(ctx context.Context, eventID string) ([]domain.Guest, error)
}

type objectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Export is a finished guestlist export.
type Export struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}

var exportHeader = []string{"name", "username", "university_id", "status", "invited_by", "checked_in_by", "timestamp"}

// Exporter writes an event's guestlist to object storage as CSV.
type Exporter struct {
	guests guestLister
	store  objectStore
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time
}

func NewExporter(guests guestLister, store objectStore, ttl time.Duration, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Exporter{guests: guests, store: store, ttl: ttl, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Export uploads the current guestlist, sorted by name, and returns a
// presigned download URL.
func (e *Exporter) Export(ctx context.Context, eventID string) (*Export, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required: %w", domain.ErrBadRequest)
	}
	guests, err := e.guests.ListByEvent(ctx, eventID)
	if err != nil {
		e.log.Warn("export list failed", "stage", "lookup", "event_id", eventID, "err", err)
		return nil, fmt.Errorf("%w: list guests", domain.ErrUnavailable)
	}
	slices.SortStableFunc(guests, func(a, b domain.Guest) int { return cmp.Compare(a.Name, b.Name) })

	body, err := encodeCSV(guests)
	if err != nil {
		e.log.Error("export encode failed", "stage", "encode", "event_id", eventID, "err", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrEncoding, err)
	}

	key := fmt.Sprintf("exports/%s/%s.csv", eventID, id.New())
	if err := e.store.Upload(ctx, key, bytes.NewReader(body), "text/csv"); err != nil {
		e.log.Error("export upload failed", "stage", "write", "event_id", eventID, "key", key, "err", err)
		return nil, fmt.Errorf("%w: upload", domain.ErrUnavailable)
	}
	url, err := e.store.PresignedURL(ctx, key, e.ttl)
	if err != nil {
		e.log.Error("export presign failed", "stage", "write", "event_id", eventID, "key", key, "err", err)
		return nil, fmt.Errorf("%w: presign", domain.ErrUnavailable)
	}
	return &Export{Key: key, URL: url, Rows: len(guests), ExpiresAt: e.now().Add(e.ttl)}, nil
}

func encodeCSV(guests []domain.Guest) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, g := range guests {
		row := []string{
			g.Name,
			g.UsernameValue(),
			g.UniversityID,
			string(g.Status),
			deref(g.InvitedBy),
			deref(g.CheckedInBy),
			g.Timestamp.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
