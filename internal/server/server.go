// Package server exposes estimates over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/mmstats/mmstats/internal/config"
	"github.com/mmstats/mmstats/internal/estimator"
	"github.com/mmstats/mmstats/internal/metrics"
	"github.com/mmstats/mmstats/internal/scoring"
)

type Server struct {
	app      *fiber.App
	cfg      *config.AppConfig
	rounds   RoundSource
	defaults estimator.Options
}

// SourceError wraps failures of the round source so they are reported as a
// bad gateway rather than a bad request.
type SourceError struct {
	RoundID int64
	Err     error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("round %d: %v", e.RoundID, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// New builds the HTTP app. rounds may be nil, in which case the round route
// answers 503.
func New(cfg *config.AppConfig, rounds RoundSource) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app configuration cannot be nil")
	}

	defaults := estimator.DefaultOptions()
	defaults.Workers = cfg.Simulation.Workers
	if cfg.Simulation.Simulations > 0 {
		defaults.Simulations = cfg.Simulation.Simulations
	}
	if cfg.Simulation.Policy != "" {
		p, err := scoring.ParsePolicy(cfg.Simulation.Policy)
		if err != nil {
			return nil, fmt.Errorf("default policy: %w", err)
		}
		defaults.Policy = p
	}

	app := fiber.New(fiber.Config{
		Prefork:               false,
		DisableStartupMessage: true,
		ErrorHandler:          fiberErrHandler,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
	})

	app.Use(recover.New())
	app.Use(RequestIDMiddleware())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(ZstdMiddleware(cfg.Server.BodyLimit))

	s := &Server{app: app, cfg: cfg, rounds: rounds, defaults: defaults}

	app.Get("/healthz", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	v1 := app.Group("/v1")
	v1.Post("/estimates", s.handleEstimate)
	v1.Get("/rounds/:id/estimate", s.handleRoundEstimate)

	log.Info().Str("address", cfg.Server.Address).Str("policy", defaults.Policy.String()).
		Int("simulations", defaults.Simulations).Msg("server configured")
	return s, nil
}

// App exposes the underlying fiber app, mostly for tests.
func (s *Server) App() *fiber.App { return s.app }

func statusFor(err error) int {
	var fe *fiber.Error
	var se *SourceError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case estimator.IsInputError(err):
		return fiber.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &se):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func fiberErrHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)

	ev := log.Warn()
	if code >= fiber.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).
		Int("status_code", code).
		Str("path", c.Path()).
		Str("method", c.Method()).
		Str("request_id", requestID(c)).
		Msg("request failed")

	msg := err.Error()
	return c.Status(code).JSON(StdResponse[any]{Error: &msg, RequestID: requestID(c)})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.cfg.Server.Address).Msg("server listening")
		errCh <- s.app.Listen(s.cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
