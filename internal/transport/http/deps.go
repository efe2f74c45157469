package http

import (
	"log/slog"

	"github.com/go-guestlist/internal/application/notification"
	"github.com/go-guestlist/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-guestlist/internal/infrastructure/jwt"
	"github.com/go-guestlist/internal/infrastructure/redisx"
	s3infra "github.com/go-guestlist/internal/infrastructure/s3"
	"github.com/go-guestlist/internal/pkg/telemetry"
	"github.com/redis/go-redis/v9"
)

// Deps holds all infrastructure dependencies for the router.
// Redis, Once, Verifier and Signals are optional.
type Deps struct {
	GuestRepo        *dynamo.GuestRepo
	UserRepo         *dynamo.UserRepo
	EventRepo        *dynamo.EventRepo
	AccessRepo       *dynamo.AccessRepo
	UniversityRepo   *dynamo.UniversityRepo
	NotificationRepo *dynamo.NotificationRepo
	WatermarkRepo    *dynamo.WatermarkRepo
	S3Store          *s3infra.Store
	Redis            *redis.Client
	Once             *redisx.OnceGuard
	Sender           *notification.Sender
	Verifier         *jwtinfra.Verifier
	Signals          telemetry.Sink
	Logger           *slog.Logger
}
