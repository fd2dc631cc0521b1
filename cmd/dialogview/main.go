// Command dialogview tails a dialog gateway's event stream, reconciles it
// into a consistent conversation timeline, and serves the reconciled state
// on a local debug surface.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/longrun-ai/dominds-sub008/internal/config"
	"github.com/longrun-ai/dominds-sub008/internal/debugserver"
	"github.com/longrun-ai/dominds-sub008/internal/engine"
	"github.com/longrun-ai/dominds-sub008/internal/journal"
	"github.com/longrun-ai/dominds-sub008/internal/roster"
	"github.com/longrun-ai/dominds-sub008/internal/telemetry"
	"github.com/longrun-ai/dominds-sub008/internal/tokencount"
	"github.com/longrun-ai/dominds-sub008/internal/transport"
	"github.com/longrun-ai/dominds-sub008/internal/wire"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.Init("dialogview", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	team := roster.Empty()
	if cfg.Roster.Path != "" {
		team, err = roster.Load(cfg.Roster.Path)
		if err != nil {
			log.Fatalf("Failed to load roster: %v", err)
		}
		logger.Info("roster loaded", slog.Int("members", team.Len()))
	}

	var frames *journal.Journal
	if cfg.Journal.Path != "" {
		frames, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer frames.Close()
	}

	violations := debugserver.NewViolationRing(256)

	// Sink chain: token accounting over the raw stream, then roster
	// labeling of member ids on the way out.
	labeled := roster.NewLabelingSink(engine.NopSink{}, team)
	counting := tokencount.NewCountingSink(labeled, tokencount.NewCounter(""))

	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithSink(counting),
		engine.WithObserver(func(v engine.Violation) {
			logger.Warn("protocol violation",
				slog.String("code", v.Code),
				slog.String("message", v.Message),
				slog.Int("genseq", v.GenSeq),
				slog.String("call_id", v.CallID))
			violations.Add(v)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Dialog.RootID != "" {
		dlg := engine.DialogContext{
			RootID:  cfg.Dialog.RootID,
			SelfID:  cfg.Dialog.SelfID,
			AgentID: cfg.Dialog.AgentID,
		}
		if err := eng.SetDialog(dlg); err != nil {
			log.Fatalf("Failed to open dialog: %v", err)
		}
		eng.SetCurrentCourse(cfg.Dialog.Course)

		// Rebuild the timeline from journaled frames before going live.
		if frames != nil {
			n := 0
			err := frames.Replay(ctx, cfg.Dialog.RootID, func(ev wire.Event) error {
				eng.Handle(ev)
				n++
				return nil
			})
			if err != nil {
				logger.Warn("journal replay failed", slog.String("error", err.Error()))
			} else if n > 0 {
				logger.Info("journal replayed", slog.Int("frames", n))
			}
		}
	}

	// The engine is single-threaded by contract: every touch goes
	// through this loop, one action at a time, in arrival order.
	actions := make(chan func(), 1024)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-actions:
				fn()
			}
		}
	}()

	tracer := otel.Tracer("dialogview/eventloop")

	client := transport.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, logger)
	client.OnEvent(func(ev wire.Event) {
		actions <- func() {
			_, span := tracer.Start(ctx, "engine.handle")
			span.SetAttributes(attribute.String("event.kind", string(ev.EventKind())))
			eng.Handle(ev)
			span.End()

			if frames != nil {
				if d, ok := eng.Dialog(); ok {
					if err := frames.Append(ctx, d.RootID, ev); err != nil {
						logger.Warn("journal append failed", slog.String("error", err.Error()))
					}
				}
			}
		}
	})

	snapshot := snapshotFunc(ctx, actions, eng)

	debug := debugserver.New(cfg.Server.Addr, logger, debugserver.Options{
		Snapshot:   snapshot,
		Violations: violations,
		Tokens:     counting.Totals,
		ConnState:  func() string { return client.State().String() },
	})
	debug.Start()

	go func() {
		if err := client.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("transport stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("dialogview started",
		slog.String("gateway", cfg.Gateway.URL),
		slog.String("debug_addr", cfg.Server.Addr),
		slog.Int("roster_members", team.Len()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := debug.Shutdown(shutdownCtx); err != nil {
		logger.Error("debug server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("dialogview stopped")
}

// snapshotFunc captures engine snapshots through the action loop. The
// loop stops consuming once ctx ends; a request racing shutdown gets an
// empty snapshot instead of blocking until the server's write timeout.
func snapshotFunc(ctx context.Context, actions chan<- func(), eng *engine.Engine) func() engine.Snapshot {
	return func() engine.Snapshot {
		reply := make(chan engine.Snapshot, 1)
		select {
		case actions <- func() { reply <- eng.Snapshot() }:
		case <-ctx.Done():
			return engine.Snapshot{}
		}
		select {
		case snap := <-reply:
			return snap
		case <-ctx.Done():
			return engine.Snapshot{}
		}
	}
}

func configPath() string {
	if p := os.Getenv("DIALOGVIEW_CONFIG"); p != "" {
		return p
	}
	return "dialogview.yaml"
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
