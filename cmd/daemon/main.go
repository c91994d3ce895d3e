// SPDX-License-Identifier: MIT

// Command daemon hosts the content-generation gateways. By default all
// six run in one process on independent listeners; -gateway restricts
// the process to a single one for per-GPU deployment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Amore-GG/BE/internal/api"
	"github.com/Amore-GG/BE/internal/comfy"
	"github.com/Amore-GG/BE/internal/config"
	"github.com/Amore-GG/BE/internal/llm"
	"github.com/Amore-GG/BE/internal/log"
	"github.com/Amore-GG/BE/internal/media/ffmpeg"
	"github.com/Amore-GG/BE/internal/retention"
	"github.com/Amore-GG/BE/internal/scenario"
	"github.com/Amore-GG/BE/internal/session"
	"github.com/Amore-GG/BE/internal/tts"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	gateway := flag.String("gateway", "", "run a single gateway (scenario|image|video|lipsync|audio|merge)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *gateway != "" {
		cfg.Gateway = *gateway
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.ResolvePaths()

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "adpipe"})
	logger := log.WithComponent("daemon")
	logger.Info().
		Str("version", version).
		Str("gateway", cfg.Gateway).
		Str("data_dir", cfg.DataDir).
		Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := session.NewStore(filepath.Join(cfg.DataDir, "sessions"))
	if err != nil {
		return err
	}

	templates := comfy.NewTemplateStore()
	runner := ffmpeg.Runner{}

	g, ctx := errgroup.WithContext(ctx)

	// one backend client per gateway so WebSocket frames are keyed by
	// distinct client ids even when the URLs coincide
	backends := map[string]*comfy.Client{}
	for _, name := range []string{"image", "video", "lipsync", "audio"} {
		if enabled(cfg, name) {
			backends[name] = comfy.NewClient(cfg.BackendFor(name))
		}
	}

	var retentionDirs []retention.Policy
	addServer := func(name, addr string, handler http.Handler) {
		serveGateway(ctx, g, name, addr, handler)
		retentionDirs = append(retentionDirs,
			retention.Policy{Dir: filepath.Join(cfg.DataDir, "outputs", name), MaxAge: cfg.FileMaxAge},
			retention.Policy{Dir: filepath.Join(cfg.DataDir, "uploads", name), MaxAge: cfg.FileMaxAge},
		)
	}

	if enabled(cfg, "scenario") {
		completer, err := llm.New(cfg.LLM.APIKey, cfg.LLM.Model, llm.WithBaseURL(cfg.LLM.BaseURL))
		if err != nil {
			return fmt.Errorf("llm client: %w", err)
		}
		engine := scenario.NewEngine(completer)
		addServer("scenario", cfg.Listen.Scenario, api.NewScenarioRouter(&cfg, engine))
	}
	if enabled(cfg, "image") {
		addServer("image", cfg.Listen.Image, api.NewImageRouter(&cfg, store, backends["image"], templates))
	}
	if enabled(cfg, "video") {
		addServer("video", cfg.Listen.Video, api.NewVideoRouter(&cfg, store, backends["video"], templates, runner))
	}
	if enabled(cfg, "lipsync") {
		addServer("lipsync", cfg.Listen.Lipsync, api.NewLipsyncRouter(&cfg, store, backends["lipsync"], templates))
	}
	if enabled(cfg, "audio") {
		var speech *tts.Client
		if cfg.TTS.APIKey != "" && cfg.TTS.VoiceID != "" {
			opts := []tts.Option{}
			if cfg.TTS.ModelID != "" {
				opts = append(opts, tts.WithModelID(cfg.TTS.ModelID))
			}
			speech, err = tts.New(cfg.TTS.APIKey, cfg.TTS.VoiceID, opts...)
			if err != nil {
				return fmt.Errorf("tts client: %w", err)
			}
		} else {
			lg := log.WithComponent("daemon")
			lg.Warn().Msg("tts credentials missing, /tts endpoints disabled")
		}
		addServer("audio", cfg.Listen.Audio, api.NewAudioRouter(&cfg, store, backends["audio"], templates, speech))
	}
	if enabled(cfg, "merge") {
		addServer("merge", cfg.Listen.Merge, api.NewMergeRouter(&cfg, store, runner))
	}

	// background maintenance: session TTL, artifact TTL, template reload
	sessionSweeper := &session.Sweeper{
		Store: store,
		Conf:  session.SweeperConfig{Interval: cfg.SweepInterval, MaxAge: cfg.SessionMaxAge},
	}
	g.Go(func() error { return sessionSweeper.Run(ctx) })

	artifactSweeper := &retention.Sweeper{Policies: retentionDirs, Interval: cfg.SweepInterval}
	g.Go(func() error { return artifactSweeper.Run(ctx) })

	workflowDir := filepath.Join(cfg.DataDir, "workflows")
	g.Go(func() error {
		if err := templates.Watch(ctx, workflowDir); err != nil && !errors.Is(err, context.Canceled) {
			// reload is best-effort; templates still load on demand
			lg := log.WithComponent("daemon")
			lg.Warn().Err(err).Msg("workflow watch unavailable")
		}
		return nil
	})

	return g.Wait()
}

// enabled reports whether a gateway should run in this process.
func enabled(cfg config.Config, name string) bool {
	return cfg.Gateway == "all" || cfg.Gateway == name
}

// serveGateway runs one HTTP server under the group with graceful
// shutdown on context cancellation.
func serveGateway(ctx context.Context, g *errgroup.Group, name, addr string, handler http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		lg := log.WithComponent("daemon")
		lg.Info().
			Str("gateway", name).
			Str("addr", addr).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s listener: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
