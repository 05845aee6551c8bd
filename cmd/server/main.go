// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/vibebox/internal/api/httpapi"
	"github.com/osa030/vibebox/internal/app/decision"
	"github.com/osa030/vibebox/internal/app/detector"
	"github.com/osa030/vibebox/internal/app/gate"
	"github.com/osa030/vibebox/internal/app/generation"
	"github.com/osa030/vibebox/internal/app/notification"
	"github.com/osa030/vibebox/internal/app/orchestrator"
	"github.com/osa030/vibebox/internal/app/playback"
	"github.com/osa030/vibebox/internal/infra/audio"
	"github.com/osa030/vibebox/internal/infra/config"
	"github.com/osa030/vibebox/internal/infra/history"
	"github.com/osa030/vibebox/internal/infra/logger"
	"github.com/osa030/vibebox/internal/infra/sampler"
	"github.com/osa030/vibebox/internal/infra/suno"
	"github.com/osa030/vibebox/internal/infra/vision"
)

var (
	app        = kingpin.New("vibebox-server", "vibebox context-aware music server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	// list-gates command
	listGatesCmd = app.Command("list-gates", "List available decision gates and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listGatesCmd.FullCommand() {
		printGates()
		return
	}

	if err := logger.Init(*verbose, *logfile); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	chain, cooldown, threshold, err := buildGateChain(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid gate config")
	}

	contextSampler, err := sampler.New(cfg.Sampler.Type, cfg.Sampler.Settings)
	if err != nil {
		return errors.Wrap(err, "failed to create sampler")
	}
	defer contextSampler.Close()

	visionClient, err := vision.New(vision.Config{
		APIKey:    cfg.Anthropic.APIKey,
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		BaseURL:   cfg.Anthropic.BaseURL,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create vision client")
	}

	sunoClient, err := suno.New(suno.Config{
		APIKey:          cfg.Suno.APIKey,
		BaseURL:         cfg.Suno.BaseURL,
		Model:           cfg.Suno.Model,
		PollInterval:    cfg.PollInterval(),
		PollMaxAttempts: cfg.Suno.PollMaxAttempts,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create suno client")
	}

	historyStore, err := history.Open(cfg.History.DBPath)
	if err != nil {
		return errors.Wrap(err, "failed to open history store")
	}
	defer historyStore.Close()

	recent := generation.NewRecentGenres(cfg.Generation.RecentGenreCount,
		filepath.Join(cfg.Generation.StateDir, "recent_genres.json"))

	coordinator := generation.NewCoordinator(generation.Config{
		RecentGenreCount: cfg.Generation.RecentGenreCount,
	}, visionClient, sunoClient, audio.NewProber(), recent)
	defer coordinator.Close()

	manager := notification.NewManager()
	defer manager.Close()

	controller := playback.NewController(playback.Config{
		FadeSteps:            cfg.Playback.FadeSteps,
		FadeStepInterval:     cfg.FadeStepInterval(),
		DefaultTrackDuration: cfg.DefaultTrackDuration(),
	}, notification.NewPlayerOutput(manager))
	defer controller.Close()

	var thresholdValue float64
	if threshold != nil {
		thresholdValue = threshold.Threshold()
	}

	orch := orchestrator.New(
		orchestrator.Config{TickInterval: cfg.SampleInterval()},
		contextSampler,
		visionClient,
		detector.New(thresholdValue),
		decision.NewEngine(chain, cooldown),
		coordinator,
		controller,
		historyStore,
		manager,
	)
	defer orch.Close()

	apiServer := httpapi.NewServer(cfg.Server.Addr, orch, historyStore, sunoClient, manager)

	// Log remaining credits at startup; a failure is not fatal.
	if n, err := sunoClient.Credits(context.Background()); err != nil {
		zlog.Warn().Msgf("Failed to fetch generation credits: %v", err)
	} else {
		zlog.Info().Msgf("Generation credits remaining: count=%v", n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Run(gctx)
	})
	g.Go(func() error {
		return orch.Run(gctx)
	})

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return err
}

// buildGateChain assembles the configured gates in order. The cooldown and
// threshold gates are returned separately; the decision engine and detector
// need them directly.
func buildGateChain(cfg *config.Config) (*gate.Chain, *gate.CooldownGate, *gate.ThresholdGate, error) {
	registry := gate.GetRegistered()
	chain := gate.NewChain()

	var cooldown *gate.CooldownGate
	var threshold *gate.ThresholdGate

	for _, name := range cfg.GateOrder() {
		if !cfg.IsGateEnabled(name) {
			zlog.Info().Msgf("Gate disabled: name=%v", name)
			continue
		}
		factory, exists := registry[name]
		if !exists {
			return nil, nil, nil, errors.Newf("unknown gate %q", name)
		}

		g := factory()
		if err := g.ValidateConfig(cfg.GateSettings(name)); err != nil {
			return nil, nil, nil, errors.Wrapf(err, "gate %s", name)
		}
		chain.Add(g)

		switch t := g.(type) {
		case *gate.CooldownGate:
			cooldown = t
		case *gate.ThresholdGate:
			threshold = t
		}
	}
	return chain, cooldown, threshold, nil
}

// printGates prints available decision gates.
func printGates() {
	fmt.Println("Available Gates:")
	for _, factory := range gate.GetRegistered() {
		g := factory()
		codes := strings.Join(g.ReturnCodes(), ", ")
		fmt.Printf("  %-20s - %s [codes: %s]\n", g.Name(), g.Description(), codes)
	}
}

// executeHooks runs the configured shell commands for a lifecycle stage.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
