package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/term"

	"termcal/internal/calendar"
	"termcal/internal/config"
	"termcal/internal/ics"
	appLog "termcal/internal/log"
	"termcal/internal/render"
	"termcal/internal/resolver"
	"termcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; zero values mean "use config".
type flagConfig struct {
	configPath string
	year       int
	month      int
	serve      bool
	listen     string
	watch      bool
	logLevel   string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()

	level := conf.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))
	appLog.Info("termcal starting", "version", version)

	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if conf.Feed.URL == "" {
		appLog.Error("no feed configured", errors.New("feed.url is empty"), "config_path", flags.configPath, "env", config.EnvFeedURL)
		os.Exit(1)
	}

	policy, err := resolver.ParsePolicy(conf.Policy)
	if err != nil {
		appLog.Error("invalid policy", err)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"feed", conf.Feed.ID,
		"timezone", conf.Location().String(),
		"policy", policy,
		"cache_ttl", conf.CacheTTL(),
		"wide_days", conf.WideDays,
		"offline_fallback", conf.OfflineFallback,
		"serve", flags.serve,
		"watch", flags.watch,
	)

	fetcher := ics.NewFetcher(conf.CacheDir, nil)
	fetcher.OfflineFallback = conf.OfflineFallback
	feed := ics.NewFeed(ics.Source{ID: conf.Feed.ID, URL: conf.Feed.URL}, fetcher, conf.Location(), conf.MaxOccurrences)
	res := resolver.New(feed,
		resolver.WithPolicy(policy),
		resolver.WithWindow(conf.CacheTTL()),
		resolver.WithWideDays(conf.WideDays),
		resolver.WithCapacity(conf.CacheCapacity),
		resolver.WithLocation(conf.Location()),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case flags.serve:
		srv := web.NewServer(conf, res)
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			os.Exit(1)
		}
	case flags.watch:
		if err := runWatch(ctx, conf, res, flags); err != nil {
			appLog.Error("watch failed", err)
			os.Exit(1)
		}
	default:
		if err := printMonth(ctx, conf, res, flags, false); err != nil {
			appLog.Error("failed to print month", err)
			os.Exit(1)
		}
	}

	st := res.Stats()
	appLog.Info("termcal exiting", "fetches", st.Fetches, "cache_hits", st.Hits, "failures", st.Failures)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", config.DefaultPath(), "Path to config file")
	flag.IntVar(&cfg.year, "year", 0, "Year to show (defaults to the current year)")
	flag.IntVar(&cfg.month, "month", 0, "Month to show, 1-12 (defaults to the current month)")
	flag.BoolVar(&cfg.serve, "serve", false, "Serve the JSON API instead of printing")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.watch, "watch", false, "Re-print the month on the configured refresh schedule")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	flag.Parse()

	return cfg
}

// runWatch prints once, then again on every tick of conf.Refresh until ctx
// is cancelled. Ticks only refetch once the cache bucket has moved on.
func runWatch(ctx context.Context, conf *config.Config, res *resolver.Resolver, flags flagConfig) error {
	if err := printMonth(ctx, conf, res, flags, true); err != nil {
		appLog.Error("initial render failed", err)
	}

	c := cron.New(cron.WithLocation(conf.Location()))
	if _, err := c.AddFunc(conf.Refresh, func() {
		if err := printMonth(ctx, conf, res, flags, true); err != nil {
			appLog.Error("scheduled render failed", err)
		}
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", conf.Refresh, err)
	}

	appLog.Info("watch started", "schedule", conf.Refresh)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func printMonth(ctx context.Context, conf *config.Config, res *resolver.Resolver, flags flagConfig, clearScreen bool) error {
	loc := conf.Location()
	today := calendar.Today(loc)

	year, month := today.Year, today.Month
	if flags.year != 0 {
		year = flags.year
	}
	if flags.month != 0 {
		month = time.Month(flags.month)
	}
	if err := calendar.ValidateMonth(year, month); err != nil {
		return err
	}

	grid := calendar.MonthGrid(year, month)
	events, err := res.EventsForGrid(ctx, grid)
	if err != nil {
		return err
	}

	title := conf.Feed.Name
	if title == "" {
		title = conf.Feed.ID
	}
	out := render.Month(render.MonthView{
		Year:      year,
		Month:     month,
		Title:     title,
		Grid:      grid,
		Events:    events,
		Today:     today,
		MaxEvents: conf.MaxEventsPerDay,
		CellWidth: cellWidth(),
	})

	if clearScreen && term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print("\x1b[H\x1b[2J")
	}
	fmt.Println(out)
	return nil
}

// cellWidth fits seven columns into the terminal, or the default width when
// stdout is not a terminal.
func cellWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return render.DefaultCellWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return render.DefaultCellWidth
	}
	return w/7 - 1
}
