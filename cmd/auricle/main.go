// Command auricle runs the speech-input pipeline against a WAV recording:
// voice activity detection, wake-phrase spotting, and command recognition,
// with results printed to stdout and metrics exposed for Prometheus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/auricle-dev/auricle/internal/config"
	"github.com/auricle-dev/auricle/internal/observe"
	"github.com/auricle-dev/auricle/internal/transcriptlog"
	"github.com/auricle-dev/auricle/pkg/asr"
	"github.com/auricle-dev/auricle/pkg/asr/speechwire"
	"github.com/auricle-dev/auricle/pkg/audio"
	"github.com/auricle-dev/auricle/pkg/audio/wavfile"
	"github.com/auricle-dev/auricle/pkg/pipeline"
	"github.com/auricle-dev/auricle/pkg/stage/recognizer"
	"github.com/auricle-dev/auricle/pkg/stage/vad"
	"github.com/auricle-dev/auricle/pkg/stage/wakeword"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "", "path to a 16-bit PCM WAV file to replay as the microphone")
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "auricle: -input is required")
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "auricle: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := observe.NewLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("auricle starting",
		"config", *configPath,
		"input", *inputPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Speech backend ────────────────────────────────────────────────────────
	var providerOpts []speechwire.Option
	if cfg.Backend.Model != "" {
		providerOpts = append(providerOpts, speechwire.WithModel(cfg.Backend.Model))
	}
	if cfg.Backend.Language != "" {
		providerOpts = append(providerOpts, speechwire.WithLanguage(cfg.Backend.Language))
	}
	providerOpts = append(providerOpts, speechwire.WithSampleRate(cfg.Audio.SampleRate))

	provider, err := speechwire.New(cfg.Backend.Endpoint, cfg.Backend.APIKey, providerOpts...)
	if err != nil {
		slog.Error("failed to create speech backend", "err", err)
		return 1
	}

	// ── Audio source ──────────────────────────────────────────────────────────
	source, err := wavfile.Open(*inputPath, wavfile.Config{
		FrameWidth: cfg.Audio.FrameWidth(),
		Realtime:   true,
	})
	if err != nil {
		slog.Error("failed to open input", "path", *inputPath, "err", err)
		return 1
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	pipe, cleanup, err := buildPipeline(ctx, cfg, provider, source, logger)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	defer cleanup()

	// ── Run ───────────────────────────────────────────────────────────────────
	g, runCtx := errgroup.WithContext(ctx)

	if cfg.Server.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux()}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := pipe.Start(runCtx); err != nil {
			return fmt.Errorf("pipeline start: %w", err)
		}
		<-runCtx.Done()
		return pipe.Stop()
	})

	slog.Info("pipeline ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildPipeline wires the shared context, the three stages, and the optional
// transcript log into a ready-to-start pipeline. The returned cleanup closes
// everything the pipeline does not own itself.
func buildPipeline(ctx context.Context, cfg *config.Config, provider asr.Provider, source *wavfile.Source, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	sc := pipeline.NewSharedContext(cfg.Dispatch.QueueDepth)
	hw := pipeline.NewHardwareGuard(cfg.Backend.LockTimeout())

	stream := asr.StreamConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   1,
		Language:   cfg.Backend.Language,
	}

	vadStage, err := vad.New(sc, vad.Config{
		SpeechThreshold:  cfg.VAD.SpeechThreshold,
		SilenceThreshold: cfg.VAD.SilenceThreshold,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("vad stage: %w", err)
	}

	wakeStage, err := wakeword.New(sc, hw, provider, wakeword.Config{
		Phrases:           cfg.Wakeword.Phrases,
		PhoneticThreshold: cfg.Wakeword.PhoneticThreshold,
		FuzzyThreshold:    cfg.Wakeword.FuzzyThreshold,
		Stream:            stream,
		MaxStreamDuration: cfg.Backend.MaxStreamDuration(),
		LockTimeout:       cfg.Backend.LockTimeout(),
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wakeword stage: %w", err)
	}

	recogStage, err := recognizer.New(sc, hw, provider, recognizer.Config{
		Stream:            stream,
		MaxStreamDuration: cfg.Backend.MaxStreamDuration(),
		SilenceTimeout:    cfg.Recognizer.SilenceTimeout(),
		LockTimeout:       cfg.Backend.LockTimeout(),
		Logger:            logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("recognizer stage: %w", err)
	}

	metrics := observe.DefaultMetrics()
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithListener(observe.NewPipelineListener(metrics)),
		pipeline.WithFrameHook(func(audio.Frame) {
			metrics.FramesProcessed.Add(context.Background(), 1)
		}),
		pipeline.WithListener(&pipeline.Funcs{
			Activated: func() { fmt.Println(">> listening") },
			Recognized: func(s pipeline.Snapshot) {
				fmt.Printf(">> %q (%.2f)\n", s.Transcript, s.Confidence)
			},
			Deactivated: func() { fmt.Println(">> idle") },
			Errored:     func(err error) { slog.Error("pipeline error", "err", err) },
		}),
	}

	cleanup := func() {}
	if cfg.Transcript.DatabaseURL != "" {
		store, err := transcriptlog.NewStore(ctx, cfg.Transcript.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("transcript log: %w", err)
		}
		recorder := transcriptlog.NewRecorder(store, logger)
		slog.Info("transcript log enabled", "run_id", recorder.RunID())
		opts = append(opts, pipeline.WithListener(recorder))
		cleanup = store.Close
	}

	pipe, err := pipeline.New(pipeline.Config{
		SampleRate: cfg.Audio.SampleRate,
		FrameWidth: cfg.Audio.FrameWidth(),
	}, sc, source, []pipeline.Stage{vadStage, wakeStage, recogStage}, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return pipe, cleanup, nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}
