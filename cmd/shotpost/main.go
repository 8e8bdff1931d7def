package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/shotpost/internal/api"
	"github.com/dgnsrekt/shotpost/internal/browser"
	"github.com/dgnsrekt/shotpost/internal/config"
	"github.com/dgnsrekt/shotpost/internal/controller"
	"github.com/dgnsrekt/shotpost/internal/counter"
	"github.com/dgnsrekt/shotpost/internal/locator"
	"github.com/dgnsrekt/shotpost/internal/logsink"
	"github.com/dgnsrekt/shotpost/internal/netutil"
	"github.com/dgnsrekt/shotpost/internal/notify"
	"github.com/dgnsrekt/shotpost/internal/orchestrator"
	"github.com/dgnsrekt/shotpost/internal/platform"
	"github.com/dgnsrekt/shotpost/internal/session"
	"github.com/dgnsrekt/shotpost/internal/storage"
	"github.com/dgnsrekt/shotpost/internal/trash"
	"github.com/dgnsrekt/shotpost/internal/types"
	"github.com/dgnsrekt/shotpost/internal/watcher"
)

const (
	logRingSize = 500

	// Manual uploads through the control API.
	uploadInterval = 5 * time.Second
	uploadBurst    = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	doc := config.NewDocument(cfg.SettingsFile)
	settings, err := doc.Ensure(slog.Default())
	if err != nil {
		slog.Error("failed to prepare settings document", "path", doc.Path(), "error", err)
		os.Exit(1)
	}

	ring := logsink.NewRing(logRingSize, cfg.SlogLevel())
	if err := setupLogger(cfg.SlogLevel(), settings.LogFile, ring); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}
	logger := slog.Default()

	slog.Info("shotpost config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"settings_file", doc.Path(),
		"screenshot_dir", settings.ScreenshotDirectory,
		"counter_file", settings.CounterFile,
		"delay_fb_to_ig", settings.DelayFBToIG,
		"delay_after_ig", settings.DelayAfterIG,
		"wait_timeout_ms", cfg.WaitTimeoutMS,
		"launch_browser", cfg.LaunchBrowser,
		"notify", cfg.NotifyEndpoint != "",
		"log_level", cfg.LogLevel,
		"log_file", settings.LogFile,
	)

	if err := run(cfg, doc, settings, ring, logger); err != nil {
		slog.Error("shotpost stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("shotpost stopped")
}

func run(cfg *config.Config, doc *config.Document, settings config.Settings, ring *logsink.Ring, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tbl, err := locator.Load(cfg.LocatorsFile)
	if err != nil {
		return err
	}

	if cfg.LaunchBrowser {
		l := browser.NewLauncher(browser.Config{
			CDPAddress:       cfg.CDPAddress,
			CDPPort:          cfg.CDPPort,
			UserDataDir:      settings.UserDataDir,
			ProfileDirectory: settings.ProfileDirectory,
		}, logger)
		if err := l.Launch(ctx); err != nil {
			return err
		}
		// A browser we spawned goes down with us; an adopted one stays up.
		if l.Running() {
			defer l.Stop()
		}
	}

	probe := session.NewWSProbe(cfg.CDPURL())
	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	sess, err := session.Connect(connectCtx, cfg.CDPURL(), session.Options{Probe: probe, Logger: logger})
	cancelConnect()
	if err != nil {
		return err
	}

	counters := counter.NewStore(
		counter.WithLogger(logger),
		counter.WithKey(counter.Facebook, counter.FileBackend{Path: settings.CounterFile}, 0),
		counter.WithKey(counter.Instagram, counter.DocumentBackend{Doc: doc}, 1),
	)

	var disposer platform.Disposer
	if bin, err := trash.Home(); err != nil {
		logger.Warn("screenshots will stay in place", "error", err)
	} else {
		disposer = bin
	}

	fb, err := platform.NewFacebook(tbl, counters, platform.FacebookConfig{
		Template:    settings.FBCaptionTemplate,
		WaitTimeout: cfg.WaitTimeout(),
	}, logger)
	if err != nil {
		_ = sess.Close()
		return err
	}
	igSettle := settings.InstagramSettle()
	if igSettle == 0 {
		igSettle = platform.NoSettle
	}
	ig, err := platform.NewInstagram(tbl, counters, disposer, platform.InstagramConfig{
		Template:    settings.IGCaptionTemplate,
		Hashtags:    settings.IGCaptionHashtags,
		WaitTimeout: cfg.WaitTimeout(),
		Settle:      igSettle,
	}, logger)
	if err != nil {
		_ = sess.Close()
		return err
	}

	notifier := notify.New(cfg.NotifyEndpoint, nil, logger)
	journal := storage.NewJournal(filepath.Join(filepath.Dir(settings.LogFile), "tasks"), "tasks", 64, 25, logger)
	defer func() {
		if err := journal.Close(); err != nil {
			slog.Debug("task journal close failed", "error", err)
		}
	}()
	orch := orchestrator.New(sess, fb, ig,
		orchestrator.Config{InterPlatformDelay: settings.InterPlatformDelay(), InstagramURL: ig.HomeURL()},
		orchestrator.WithLogger(logger),
		orchestrator.WithOnFinish(journalHook(journal, logger)),
		orchestrator.WithOnFinish(notifier.TaskFinished),
	)

	svc := controller.NewService(controller.Deps{
		Browser:  sess,
		Prober:   probe,
		Runner:   orch,
		Counters: counters,
		Logs:     ring,
		Limiter:  rate.NewLimiter(rate.Every(uploadInterval), uploadBurst),
	})
	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		_ = sess.Close()
		return err
	}
	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, logger)}

	w := watcher.New(settings.ScreenshotDirectory, logger)
	g, gctx := errgroup.WithContext(ctx)

	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()
	watchDone := make(chan struct{})
	g.Go(func() error {
		defer close(watchDone)
		return w.Run(watchCtx, func(ev types.ScreenshotEvent) {
			id := orch.Dispatch(ev)
			logger.Info("upload task queued", "task", id, "path", ev.Path)
		})
	})

	g.Go(func() error {
		slog.Info("shotpost listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := session.KeepAlive(gctx, probe, session.DefaultKeepAliveInterval, logger); err != nil {
			logger.Error("browser session lost, uploads will fail until restart", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		stopWatch()
		<-watchDone

		orch.Shutdown()
		orch.Wait()

		if err := sess.Close(); err != nil {
			slog.Debug("browser session close failed", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("control API shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// journalHook appends finished task reports to the journal. Records that
// arrive after shutdown are logged and dropped.
func journalHook(journal *storage.Journal, logger *slog.Logger) func(orchestrator.Report) {
	return func(rep orchestrator.Report) {
		if err := journal.Write(rep); err != nil {
			logger.Debug("task journal write skipped", "task", rep.TaskID, "error", err)
		}
	}
}

func setupLogger(level slog.Level, filename string, ring *logsink.Ring) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	text := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(logsink.Fanout{text, ring}))
	return nil
}
