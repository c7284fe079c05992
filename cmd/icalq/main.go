package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"icalq/internal/config"
	"icalq/internal/ical"
	applog "icalq/internal/log"
	"icalq/internal/source"
	"icalq/internal/timeline"
	"icalq/internal/web"
)

func newServer(a *app) *web.Server {
	return web.NewServer(a.conf, func(_ context.Context, win timeline.Window) ([]timeline.Occurrence, error) {
		return a.query(win)
	})
}

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	cacheDir   string
	listen     string
	from       string
	to         string
	days       int
	watch      bool
	verbose    bool
}

func main() {
	flags := parseFlags()
	if flags.verbose {
		applog.SetLevel(applog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		applog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.days > 0 {
		conf.HorizonDays = flags.days
	}

	applog.Info("icalq starting",
		"config_path", flags.configPath,
		"timezone", conf.Timezone,
		"horizon_days", conf.HorizonDays,
		"source_count", len(conf.Sources),
		"watch", flags.watch,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		applog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	app := &app{
		conf:    conf,
		fetcher: source.NewFetcher(flags.cacheDir),
	}

	win, err := windowFromFlags(flags, conf)
	if err != nil {
		applog.Error("invalid window flags", err)
		os.Exit(1)
	}

	if !flags.watch {
		if err := app.runOnce(ctx, win); err != nil {
			applog.Error("run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := app.runWatch(ctx); err != nil {
		applog.Error("watch mode failed", err)
		os.Exit(1)
	}
}

// app ties together the fetch/parse/query pipeline and the parsed state
// shared between the refresh loop and the HTTP provider.
type app struct {
	conf    *config.Config
	fetcher *source.Fetcher

	mu    sync.RWMutex
	roots []*ical.Component
}

// refresh re-fetches and re-parses every configured source.
func (a *app) refresh(ctx context.Context) error {
	srcs := make([]source.Source, 0, len(a.conf.Sources))
	for _, sc := range a.conf.Sources {
		srcs = append(srcs, source.Source{ID: sc.ID, URL: sc.URL, Path: sc.Path})
	}

	results, errs := a.fetcher.LoadAll(ctx, srcs)
	for _, err := range errs {
		applog.Error("source error", err)
	}
	if len(results) == 0 && len(srcs) > 0 {
		return fmt.Errorf("no source produced a calendar body (%d errors)", len(errs))
	}

	roots := make([]*ical.Component, 0, len(results))
	for _, res := range results {
		root, diags := ical.Parse(res.Body)
		if root == nil {
			applog.Warn("source contained no components", "id", res.Source.ID)
			continue
		}
		applog.Info("source parsed", "id", res.Source.ID,
			"children", len(root.Children), "diagnostics", len(diags))
		roots = append(roots, root)
	}

	a.mu.Lock()
	a.roots = roots
	a.mu.Unlock()
	return nil
}

func (a *app) query(win timeline.Window) ([]timeline.Occurrence, error) {
	a.mu.RLock()
	roots := a.roots
	a.mu.RUnlock()
	return timeline.QueryConfig(roots, win, timeline.Config{
		MaxPerComponent: a.conf.MaxOccurrences,
	})
}

// runOnce performs one fetch+parse+query cycle and prints the agenda.
func (a *app) runOnce(ctx context.Context, win timeline.Window) error {
	if err := a.refresh(ctx); err != nil {
		return err
	}
	occs, err := a.query(win)
	if err != nil {
		return err
	}

	loc := time.Local
	if l, err := time.LoadLocation(a.conf.Timezone); err == nil {
		loc = l
	}

	for _, o := range occs {
		summary := ""
		if p := o.Component.PropertyNamed("SUMMARY"); p != nil {
			summary, _ = p.Text()
		}
		marker := " "
		if o.Overridden {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  %s\n",
			marker,
			o.Start.In(loc).Format("2006-01-02 15:04"),
			o.End.In(loc).Format("15:04"),
			summary,
		)
	}
	applog.Info("agenda printed", "occurrences", len(occs))
	return nil
}

// runWatch starts the cron-driven refresh loop and the HTTP API, then
// blocks until the context is canceled.
func (a *app) runWatch(ctx context.Context) error {
	if err := a.refresh(ctx); err != nil {
		applog.Error("initial refresh failed", err)
	}

	srv := newServer(a)

	c := cron.New()
	if _, err := c.AddFunc(a.conf.RefreshCron, func() {
		if err := a.refresh(context.Background()); err != nil {
			applog.Error("scheduled refresh failed", err)
			return
		}
		srv.InvalidateCache()
		applog.Info("scheduled refresh completed")
	}); err != nil {
		return fmt.Errorf("bad refresh schedule %q: %w", a.conf.RefreshCron, err)
	}
	c.Start()
	defer c.Stop()

	httpSrv := &http.Server{Addr: a.conf.Listen, Handler: srv.Handler()}
	go func() {
		applog.Info("starting HTTP server", "listen", "http://"+a.conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Error("HTTP server failed", err)
		}
	}()

	<-ctx.Done()

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutCtx)
	applog.Info("icalq exiting")
	return nil
}

func windowFromFlags(flags flagConfig, conf *config.Config) (timeline.Window, error) {
	var win timeline.Window

	now := time.Now()
	win.Start = now
	win.End = now.AddDate(0, 0, conf.HorizonDays)

	if flags.from != "" {
		t, err := time.Parse(time.RFC3339, flags.from)
		if err != nil {
			return win, fmt.Errorf("bad -from value: %w", err)
		}
		win.Start = t
		win.End = t.AddDate(0, 0, conf.HorizonDays)
	}
	if flags.to != "" {
		t, err := time.Parse(time.RFC3339, flags.to)
		if err != nil {
			return win, fmt.Errorf("bad -to value: %w", err)
		}
		win.End = t
	}
	return win, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/icalq/config.yaml", "Path to config file")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "", "Directory for the HTTP source cache")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.from, "from", "", "Window start, RFC3339 (default: now)")
	flag.StringVar(&cfg.to, "to", "", "Window end, RFC3339 (default: start + horizon)")
	flag.IntVar(&cfg.days, "days", 0, "Horizon in days (overrides config if > 0)")
	flag.BoolVar(&cfg.watch, "watch", false, "Keep running: refresh on schedule and serve the HTTP API")
	flag.BoolVar(&cfg.verbose, "v", false, "Verbose (debug) logging")

	flag.Parse()
	return cfg
}
