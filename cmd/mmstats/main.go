package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mmstats/mmstats/internal/config"
	"github.com/mmstats/mmstats/internal/estimator"
	"github.com/mmstats/mmstats/internal/render"
	"github.com/mmstats/mmstats/internal/resultsapi"
	"github.com/mmstats/mmstats/internal/scoring"
	"github.com/mmstats/mmstats/internal/snapshot"
	"github.com/mmstats/mmstats/internal/utils/logger"
)

var (
	limit         int
	show          int
	places        int
	digits        int
	simulations   int
	testsPerTrial int
	workers       int
	seed          uint64
	policyName    string
	modeName      string
	format        string
	noCache       bool
	quiet         bool
	debug         bool
	trace         bool
)

var rootCmd = &cobra.Command{
	Use:   "mmstats <round_id>",
	Short: "Produces placement distribution for a specific Marathon Match",
	Long: `Downloads the system test scores of a Marathon Match round, resamples the
test cases and prints how likely each competitor is to finish in each place.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.IntVarP(&limit, "limit", "l", 0, "number of coders to process (0 for all)")
	f.IntVarP(&show, "show", "s", 0, "number of coders to show (0 for limit)")
	f.IntVarP(&places, "places", "p", 0, "number of places to show (0 for show)")
	f.IntVarP(&digits, "digits", "d", render.DefaultDigits, "number of precision digits to use for printing")
	f.IntVarP(&simulations, "simulations", "n", estimator.DefaultSimulations, "number of simulations to perform")
	f.IntVarP(&testsPerTrial, "tests-per-trial", "t", 0, "test cases drawn per simulation (0 for all)")
	f.IntVar(&workers, "workers", 0, "simulation workers (0 for one per CPU)")
	f.Uint64Var(&seed, "seed", 0, "seed for reproducible simulations")
	f.StringVar(&policyName, "policy", scoring.DefaultPolicy.String(), "scoring policy")
	f.StringVar(&modeName, "mode", estimator.ModeSimulate.String(), "simulate or rank")
	f.StringVar(&format, "format", render.StylePlain.String(), "output format: plain or forum")
	f.BoolVar(&noCache, "no-cache", false, "always download scores, ignoring stored snapshots")
	f.BoolVarP(&quiet, "quiet", "q", false, "do not print simulation progress")
	f.BoolVar(&debug, "debug", false, "enable debug logging")
	f.BoolVar(&trace, "trace", false, "enable trace logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Flags{Debug: debug, Trace: trace})

	roundID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || roundID <= 0 {
		return fmt.Errorf("round id must be a positive integer, got %q", args[0])
	}
	if digits < 0 {
		return fmt.Errorf("digits must be >= 0, got %d", digits)
	}
	style, err := render.ParseStyle(format)
	if err != nil {
		return err
	}

	opts := estimator.DefaultOptions()
	opts.Limit = limit
	opts.Show = show
	opts.Places = places
	opts.Simulations = simulations
	opts.TestsPerTrial = testsPerTrial
	opts.Workers = workers
	if opts.Policy, err = scoring.ParsePolicy(policyName); err != nil {
		return err
	}
	if opts.Mode, err = estimator.ParseMode(modeName); err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		opts.Seed = &seed
	}
	if !quiet && opts.Mode == estimator.ModeSimulate {
		opts.Progress = func(completed, total int) {
			fmt.Fprintf(os.Stderr, "\rPerforming simulations: %d / %d       ", completed, total)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load environment configuration: %w", err)
	}
	if noCache {
		cfg.Snapshot.Disabled = true
	}

	raw, err := loadRound(ctx, cfg, roundID, opts.Limit)
	if err != nil {
		return err
	}

	est, err := estimator.Run(ctx, raw, opts)
	if opts.Progress != nil && est != nil {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		if est == nil || !errors.Is(err, context.Canceled) {
			return err
		}
		log.Warn().Int("trials", est.Trials).Int("requested", est.Options.Simulations).
			Msg("interrupted, printing partial results")
	}

	if est.Ranking != nil {
		return render.Ranking(os.Stdout, *est.Ranking, digits)
	}
	return render.Placements(os.Stdout, est.Probabilities, render.Table{
		Competitors: est.Competitors,
		Show:        est.Options.Show,
		Places:      est.Options.Places,
		Digits:      digits,
		Style:       style,
	})
}

func loadRound(ctx context.Context, cfg *config.AppConfig, roundID int64, limit int) (scoring.RawScores, error) {
	client, err := resultsapi.NewClient(&cfg.Feed)
	if err != nil {
		return scoring.RawScores{}, fmt.Errorf("failed to init results feed client: %w", err)
	}
	store, err := snapshot.NewStore(&cfg.Snapshot)
	if err != nil {
		return scoring.RawScores{}, fmt.Errorf("failed to init snapshot store: %w", err)
	}

	source := snapshot.Source{
		Store: store,
		Fetch: resultsapi.RoundFetcher(client),
	}
	raw, err := source.RoundScores(ctx, roundID, limit)
	if err != nil {
		return scoring.RawScores{}, fmt.Errorf("round %d: %w", roundID, err)
	}
	log.Info().Int64("round", roundID).Int("competitors", raw.NumCompetitors()).Int("tests", raw.NumTests()).
		Msg("scores loaded")
	return raw, nil
}
