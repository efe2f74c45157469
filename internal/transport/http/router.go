package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-guestlist/internal/application/checkin"
	"github.com/go-guestlist/internal/application/guestlist"
	"github.com/go-guestlist/internal/application/notification"
	"github.com/go-guestlist/internal/application/roster"
	"github.com/go-guestlist/internal/application/university"
	"github.com/go-guestlist/internal/config"
	"github.com/go-guestlist/internal/infrastructure/changefeed"
	"github.com/go-guestlist/internal/transport/http/handler"
	appmiddleware "github.com/go-guestlist/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.Verifier != nil {
		authMw = appmiddleware.Auth(deps.Verifier)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// Scanners fire in bursts at the door; the limit is per operator IP.
	scanRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.ScanRatePerSec), cfg.ScanBurst)

	changes := changefeed.NewPublisher(deps.Redis, log)
	guestFeed := changefeed.NewGuestFeed(deps.Redis, deps.GuestRepo)
	notifFeed := changefeed.NewNotificationFeed(deps.Redis, deps.NotificationRepo)
	directory := university.NewDirectory(deps.UniversityRepo, log)

	svcDeps := guestlist.ServiceDeps{
		GuestRepo:  deps.GuestRepo,
		EventRepo:  deps.EventRepo,
		UserRepo:   deps.UserRepo,
		AccessRepo: deps.AccessRepo,
		Once:       deps.Once,
		Changes:    changes,
		Signals:    deps.Signals,
		Logger:     log,
	}
	if deps.Sender != nil {
		svcDeps.Notifier = deps.Sender
	}
	guestSvc := guestlist.NewService(svcDeps)
	exporter := guestlist.NewExporter(deps.GuestRepo, deps.S3Store, cfg.ExportURLTTL, log)
	dispatcher := checkin.NewDispatcher(checkin.DispatcherDeps{
		Guestlist: guestSvc,
		GuestRepo: deps.GuestRepo,
		EventRepo: deps.EventRepo,
		UserRepo:  deps.UserRepo,
		Signals:   deps.Signals,
		Logger:    log,
	})

	newRoster := func() handler.RosterView {
		return roster.NewStore(roster.StoreDeps{Feed: guestFeed, Universities: directory, Logger: log})
	}
	newEngine := func(userID string) handler.NotificationEngine {
		return notification.NewEngine(userID, notification.EngineDeps{
			Feed:       notifFeed,
			Store:      deps.NotificationRepo,
			Watermarks: deps.WatermarkRepo,
			Events:     deps.EventRepo,
			Changes:    changes,
			Logger:     log,
		})
	}

	healthH := handler.NewHealthHandler()
	guestH := handler.NewGuestHandler(guestSvc, exporter, newRoster)
	streamH := handler.NewRosterStreamHandler(newRoster, cfg.AllowedOrigins, log)
	scanH := handler.NewScanHandler(dispatcher)
	notifH := handler.NewNotificationHandler(newEngine)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Route("/events/{eventID}", func(r chi.Router) {
				r.Get("/guests", guestH.List)
				r.Post("/guests", guestH.Create)
				r.Post("/guests/requests", guestH.Request)
				r.Get("/guests/stream", streamH.Stream)
				r.Post("/guests/export", guestH.Export)
				r.Post("/guests/{guestID}/approve", guestH.Approve)
				r.Post("/guests/{guestID}/check-in", guestH.CheckIn)
				r.Delete("/guests/{guestID}", guestH.Remove)

				r.With(scanRL.Limit).Post("/scans", scanH.Scan)
				r.With(scanRL.Limit).Post("/scans/confirm", scanH.Confirm)
			})

			r.Get("/notifications", notifH.List)
			r.Post("/notifications/viewed", notifH.MarkViewed)
			r.Delete("/notifications/{id}", notifH.Delete)
		})
	})

	return r
}
