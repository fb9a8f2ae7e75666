package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mmstats/mmstats/internal/estimator"
	"github.com/mmstats/mmstats/internal/scoring"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(StdResponse[string]{Body: "ok"})
}

func (s *Server) handleEstimate(c *fiber.Ctx) error {
	req := EstimateRequest{Options: s.defaults}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	raw := scoring.RawScores{Competitors: req.Competitors, Scores: req.Scores}
	return s.estimate(c, raw, req.Options)
}

func (s *Server) handleRoundEstimate(c *fiber.Ctx) error {
	if s.rounds == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "round lookup is not configured")
	}

	roundID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || roundID <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid round id %q", c.Params("id")))
	}

	var q roundQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query: "+err.Error())
	}
	opts, err := s.optionsFromQuery(q)
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	raw, err := s.rounds.RoundScores(ctx, roundID, opts.Limit)
	if err != nil {
		return &SourceError{RoundID: roundID, Err: err}
	}
	return s.estimateWith(ctx, c, raw, opts)
}

func (s *Server) optionsFromQuery(q roundQuery) (estimator.Options, error) {
	opts := s.defaults
	opts.Limit = q.Limit
	opts.Show = q.Show
	opts.Places = q.Places
	opts.TestsPerTrial = q.TestsPerTrial
	if q.Simulations != 0 {
		opts.Simulations = q.Simulations
	}
	if q.Workers != 0 {
		opts.Workers = q.Workers
	}
	if q.Seed != "" {
		seed, err := strconv.ParseUint(q.Seed, 10, 64)
		if err != nil {
			return opts, &estimator.ConfigurationError{Field: "seed", Reason: fmt.Sprintf("must be an unsigned integer, got %q", q.Seed)}
		}
		opts.Seed = &seed
	}
	if q.Policy != "" {
		p, err := scoring.ParsePolicy(q.Policy)
		if err != nil {
			return opts, err
		}
		opts.Policy = p
	}
	if q.Mode != "" {
		m, err := estimator.ParseMode(q.Mode)
		if err != nil {
			return opts, err
		}
		opts.Mode = m
	}
	return opts, nil
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	logger := log.With().Str("request_id", requestID(c)).Logger()
	ctx := logger.WithContext(c.UserContext())
	if s.cfg.Server.EstimateLimit > 0 {
		return context.WithTimeout(ctx, s.cfg.Server.EstimateLimit)
	}
	return context.WithCancel(ctx)
}

func (s *Server) estimate(c *fiber.Ctx, raw scoring.RawScores, opts estimator.Options) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	return s.estimateWith(ctx, c, raw, opts)
}

func (s *Server) estimateWith(ctx context.Context, c *fiber.Ctx, raw scoring.RawScores, opts estimator.Options) error {
	if limit := s.cfg.Simulation.MaxSimulations; limit > 0 && opts.Simulations > limit {
		return &estimator.ConfigurationError{Field: "simulations", Reason: fmt.Sprintf("must be <= %d, got %d", limit, opts.Simulations)}
	}

	est, err := estimator.Run(ctx, raw, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && est != nil {
			zerolog.Ctx(ctx).Warn().Int("trials", est.Trials).Msg("estimate timed out")
		}
		return err
	}

	zerolog.Ctx(ctx).Debug().Str("mode", est.Options.Mode.String()).Int("competitors", len(est.Competitors)).
		Int("trials", est.Trials).Msg("estimate served")
	return c.JSON(StdResponse[EstimateResponse]{Body: newEstimateResponse(est), RequestID: requestID(c)})
}
