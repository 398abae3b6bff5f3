package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Omihmed/CalDAV2iCal/internal/config"
	"github.com/Omihmed/CalDAV2iCal/internal/dav"
	"github.com/Omihmed/CalDAV2iCal/internal/engine"
	appLog "github.com/Omihmed/CalDAV2iCal/internal/log"
	"github.com/Omihmed/CalDAV2iCal/internal/store"
	"github.com/Omihmed/CalDAV2iCal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	verbose    bool
}

func main() {
	flags := parseFlags()
	if flags.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("caldav2ical starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"output", conf.Output,
		"refresh", conf.Refresh,
		"horizon_days", conf.HorizonDays,
		"workers", conf.Workers,
		"server_count", len(conf.Servers),
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	st := store.New(conf.LogLimit)
	for _, sc := range conf.Servers {
		st.AddServer(store.Server{
			ID:              sc.ID,
			Endpoint:        sc.URL,
			Username:        sc.Username,
			Password:        sc.Password,
			CalendarPath:    sc.CalendarPath,
			IntervalMinutes: sc.IntervalMinutes,
		})
	}

	fetcher := dav.NewFetcher(time.Duration(conf.FetchTimeoutSeconds) * time.Second)
	runner := engine.NewRunner(st, fetcher, conf.Output, conf.HorizonDays)

	if flags.once {
		for _, srv := range st.Servers() {
			runner.Run(ctx, srv.ID)
		}
		appLog.Info("single-shot sync finished, exiting")
		return
	}

	pool := engine.NewPool(conf.Workers, conf.QueueSize, runner)
	pool.Start(ctx)

	sched := engine.NewScheduler(st, pool, conf.Refresh)
	if err := sched.Start(ctx); err != nil {
		appLog.Error("failed to start scheduler", err, "refresh", conf.Refresh)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    conf.Listen,
		Handler: web.NewServer(st, pool, conf.Output).Handler(),
	}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
	pool.Wait()
	appLog.Info("caldav2ical exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Sync every configured server once and exit")
	flag.BoolVar(&cfg.verbose, "verbose", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
