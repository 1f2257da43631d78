package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"program-events/auth"
)

// RouterConfig holds the transport settings applied to every route.
type RouterConfig struct {
	Logger          *slog.Logger
	Signer          *auth.Signer
	RequestTimeout  time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are honored for the client IP. Empty trusts none.
	TrustedProxies []string
}

// NewRouter wires the API routes. Every route except /healthz requires a
// bearer token. Manager-only routes are rejected here as well; participant
// and owner checks live in the services.
func NewRouter(h *Handlers, cfg RouterConfig) (*gin.Engine, error) {
	r := gin.New()
	// The rate limiter keys on ClientIP, so X-Forwarded-For is only read
	// from configured proxies.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(
		LoggingMiddleware(cfg.Logger),
		RecoveryMiddleware(),
		RateLimitMiddleware(cfg.RateLimit, cfg.RateLimitWindow),
		TimeoutMiddleware(cfg.RequestTimeout),
	)

	r.GET("/healthz", h.HandleHealth)

	secured := r.Group("")
	secured.Use(AuthMiddleware(cfg.Signer))
	manager := RequireManager()

	events := secured.Group("/events")
	{
		events.GET("", h.HandleListEvents)
		events.GET("/:name", h.HandleGetEvent)
		events.POST("", manager, h.HandleCreateEvent)
		events.PATCH("/:name", manager, h.HandleUpdateEvent)
		events.DELETE("/:name", manager, h.HandleDeleteEvent)
		events.POST("/:name/instances", manager, h.HandleCreateInstance)
	}

	instances := secured.Group("/instances")
	{
		instances.GET("", h.HandleListUpcoming)
		instances.GET("/all", manager, h.HandleListAllInstances)
		instances.GET("/:id", h.HandleGetInstance)
		instances.PATCH("/:id", manager, h.HandleUpdateInstance)
		instances.DELETE("/:id", manager, h.HandleDeleteInstance)
		instances.POST("/:id/register", h.HandleRegister)
	}

	me := secured.Group("/me")
	{
		me.GET("/registrations", h.HandleMyRegistrations)
		me.GET("/agenda", h.HandleAgenda)
	}

	registrations := secured.Group("/registrations")
	{
		registrations.GET("", manager, h.HandleListRegistrations)
		registrations.GET("/:id", h.HandleGetRegistration)
		registrations.POST("/:id/check-in", manager, h.HandleCheckIn)
		registrations.POST("/:id/cancel", h.HandleCancel)
		registrations.POST("/:id/survey", h.HandleSurvey)
	}

	secured.GET("/participants", manager, h.HandleListParticipants)
	secured.POST("/participants", manager, h.HandleAddParticipant)
	secured.GET("/dashboard", h.HandleDashboard)

	return r, nil
}
