// obswatch scores bedside observations with NEWS2, raises clinical alerts,
// screens explanatory text through a safety guardrail, and notifies the
// ward via ntfy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medobsmind/obswatch/internal/alert"
	"github.com/medobsmind/obswatch/internal/config"
	"github.com/medobsmind/obswatch/internal/feed"
	"github.com/medobsmind/obswatch/internal/guardrail"
	"github.com/medobsmind/obswatch/internal/logging"
	"github.com/medobsmind/obswatch/internal/metrics"
	"github.com/medobsmind/obswatch/internal/pipeline"
	"github.com/medobsmind/obswatch/internal/reporter"
	"github.com/medobsmind/obswatch/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "watch":
			runWatch(os.Args[2:])
			return
		case "score":
			runScore(os.Args[2:])
			return
		case "check":
			runCheck(os.Args[2:])
			return
		case "soften":
			runSoften(os.Args[2:])
			return
		case "explain":
			runExplain(os.Args[2:])
			return
		case "raise":
			runRaise(os.Args[2:])
			return
		case "alerts":
			runAlerts(os.Args[2:])
			return
		case "ack":
			runAck(os.Args[2:])
			return
		case "resolve":
			runResolve(os.Args[2:])
			return
		case "escalate":
			runEscalate(os.Args[2:])
			return
		case "stats":
			runStats(os.Args[2:])
			return
		case "purge":
			runPurge(os.Args[2:])
			return
		case "delete":
			runDelete(os.Args[2:])
			return
		case "test-ntfy":
			runTestNtfy(os.Args[2:])
			return
		case "version":
			fmt.Println("obswatch", version)
			return
		}
	}

	// Default: run daemon.
	runWatch(os.Args[1:])
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	input := fs.String("input", "-", "observation feed (JSON lines); - for stdin")
	bridge := fs.String("exec", "", "bridge command emitting observation JSON lines, restarted on exit")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	log := newLogger(cfg, cfg.Log.Level)
	defer log.Sync()

	log.Info("obswatch starting",
		zap.String("version", version),
		zap.String("ward", cfg.Instance.Ward),
	)

	var src feed.Source
	switch {
	case *bridge != "":
		parts := strings.Fields(*bridge)
		src = feed.NewSupervised(func() feed.Source {
			return feed.NewCommandSource(parts[0], parts[1:], log)
		}, 5*time.Second, 0, log)
	case *input != "-" && *input != "":
		f, err := os.Open(*input)
		if err != nil {
			log.Fatal("opening observation feed", zap.String("path", *input), zap.Error(err))
		}
		defer f.Close()
		src = readerSource{feed.NewReader(f, log)}
	default:
		src = readerSource{feed.NewReader(os.Stdin, log)}
	}

	if err := watch(cfg, src, log); err != nil {
		log.Error("fatal error", zap.Error(err))
		os.Exit(1)
	}
}

// readerSource adapts a one-shot Reader to feed.Source.
type readerSource struct{ r *feed.Reader }

func (s readerSource) Observations(ctx context.Context) (<-chan feed.Observation, error) {
	return s.r.Observations(ctx), nil
}

func watch(cfg *config.Config, src feed.Source, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	db, err := store.Open(cfg.DBPath(), log)
	if err != nil {
		return fmt.Errorf("opening alert database: %w", err)
	}
	defer db.Close()

	log.Info("alert database opened", zap.String("path", cfg.DBPath()))

	// Run retention purge on startup.
	if cfg.DB.Retention.Duration > 0 {
		purged, err := db.Purge(cfg.DB.Retention.Duration)
		if err != nil {
			log.Warn("failed to purge old alerts", zap.Error(err))
		} else if purged > 0 {
			log.Info("purged resolved alerts",
				zap.Int64("count", purged),
				zap.Duration("retention", cfg.DB.Retention.Duration),
			)
		}
	}

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, m, log)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Set up the pipeline: feed -> score -> alert -> store + cooldown -> ntfy.
	p := newPipeline(cfg, log, m)
	rep := reporter.NewNtfy(cfg, log)
	observations, err := src.Observations(ctx)
	if err != nil {
		return fmt.Errorf("starting observation feed: %w", err)
	}

	// Notify systemd we are ready (sd_notify).
	sdNotify("READY=1", log)

	var watchdogTicker *time.Ticker
	if wdInterval := watchdogInterval(); wdInterval > 0 {
		// Ping at half the watchdog interval.
		watchdogTicker = time.NewTicker(wdInterval / 2)
		defer watchdogTicker.Stop()
		log.Info("systemd watchdog enabled", zap.Duration("interval", wdInterval))
	}

	log.Info("pipeline started, watching for observations")

	for {
		var watchdogCh <-chan time.Time
		if watchdogTicker != nil {
			watchdogCh = watchdogTicker.C
		}

		select {
		case obs, ok := <-observations:
			if !ok {
				log.Info("observation feed closed")
				return nil
			}
			handleObservation(ctx, obs, p, db, rep, cfg, m, log)

		case <-watchdogCh:
			sdNotify("WATCHDOG=1", log)

		case sig := <-sigCh:
			log.Info("received signal, shutting down", zap.Stringer("signal", sig))
			sdNotify("STOPPING=1", log)
			cancel()
			return nil
		}
	}
}

// handleObservation runs one observation through scoring, storage, cooldown
// and notification.
func handleObservation(ctx context.Context, obs feed.Observation, p *pipeline.Pipeline, db *store.DB,
	rep *reporter.Ntfy, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) {
	as := p.AssessAt(obs.PatientID, obs.Vitals, false, obs.ObservedAt)
	if as.Alert == nil {
		return
	}
	a := as.Alert

	if err := db.Insert(a); err != nil {
		log.Error("failed to store alert", zap.String("alert_id", a.ID), zap.Error(err))
		return
	}
	notify(ctx, a, db, rep, cfg, m, log)
}

// notify applies the cooldown to a stored alert and reports it to ntfy. A
// failed cooldown check still notifies.
func notify(ctx context.Context, a *alert.Alert, db *store.DB, rep *reporter.Ntfy,
	cfg *config.Config, m *metrics.Metrics, log *zap.Logger) {
	dedup, err := db.CheckCooldown(a, cfg.Cooldown.Window.Duration, cfg.Cooldown.AggregateThreshold)
	if err != nil {
		log.Error("cooldown check failed, notifying anyway", zap.String("alert_id", a.ID), zap.Error(err))
	}

	if !dedup.ShouldNotify {
		m.RecordNotification("suppressed")
		log.Debug("notification suppressed by cooldown",
			zap.String("patient_id", a.PatientID),
			zap.Int("recent_count", dedup.RecentCount),
		)
		return
	}
	if !rep.Enabled() || !cfg.ShouldNotify(string(a.Severity)) {
		return
	}

	repeats := 0
	if dedup.Aggregated {
		repeats = dedup.RecentCount
	}
	if err := rep.Report(ctx, a, repeats); err != nil {
		m.RecordNotification("failed")
		log.Error("failed to send notification", zap.String("alert_id", a.ID), zap.Error(err))
		return
	}
	m.RecordNotification("sent")
	if err := db.MarkNotified(a.ID); err != nil {
		log.Warn("failed to mark alert notified", zap.String("alert_id", a.ID), zap.Error(err))
	}
}

func serveMetrics(addr string, m *metrics.Metrics, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics listener started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener failed", zap.Error(err))
		}
	}()
	return srv
}

func newPipeline(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) *pipeline.Pipeline {
	guard := guardrail.New(guardrail.Thresholds{
		Low:  cfg.Guardrail.LowThreshold,
		High: cfg.Guardrail.HighThreshold,
	})
	minSev, _ := alert.ParseSeverity(cfg.Alerting.MinSeverity)
	return pipeline.New(guard, pipeline.Options{
		MinSeverity:  minSev,
		UseCOPDScale: cfg.Alerting.COPDScale,
	}, log, m)
}

// --- sd_notify support ---

// sdNotify sends a notification to systemd via the NOTIFY_SOCKET.
func sdNotify(state string, log *zap.Logger) {
	socketAddr := os.Getenv("NOTIFY_SOCKET")
	if socketAddr == "" {
		return
	}

	conn, err := net.Dial("unixgram", socketAddr)
	if err != nil {
		log.Debug("sd_notify: failed to connect", zap.Error(err))
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		log.Debug("sd_notify: failed to send", zap.Error(err))
	}
}

// watchdogInterval reads WATCHDOG_USEC from the environment. Returns 0 if
// not set.
func watchdogInterval() time.Duration {
	usec, err := strconv.ParseInt(os.Getenv("WATCHDOG_USEC"), 10, 64)
	if err != nil || usec <= 0 {
		return 0
	}
	return time.Duration(usec) * time.Microsecond
}

// --- utilities ---

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(cfg *config.Config, level string) *zap.Logger {
	log, err := logging.New(level, cfg.Log.Format, "obswatch")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	return log
}

func openDB(cfg *config.Config, log *zap.Logger) *store.DB {
	db, err := store.Open(cfg.DBPath(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return db
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
