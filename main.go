package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"racestandings/pkg/config"
	"racestandings/pkg/logsource"
	"racestandings/pkg/model"
	"racestandings/pkg/notification"
	"racestandings/pkg/parser"
	"racestandings/pkg/pubsub"
	"racestandings/pkg/race"
	"racestandings/pkg/render"
	"racestandings/pkg/storage"
	"racestandings/pkg/webserver"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nikoksr/notify"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	logPath    string
	raceKey    string
	follow     bool
	serve      bool
	newRace    bool
	resetRace  bool
)

func main() {
	flag.StringVar(&configPath, "c", config.DefaultPath, "config path")
	flag.StringVar(&logPath, "log", "", "timing log to ingest (overrides log.path)")
	flag.StringVar(&raceKey, "race", "", "race key (overrides race.key)")
	flag.BoolVar(&follow, "follow", false, "keep reading lines appended to the timing log")
	flag.BoolVar(&serve, "serve", false, "start the web server")
	flag.BoolVar(&newRace, "new-race", false, "ingest into a freshly generated race key")
	flag.BoolVar(&resetRace, "reset", false, "clear the race before ingesting")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	conf, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatalf("Could not read config at %s", configPath)
	}
	applyFlags(&conf)
	if err := conf.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.SetLevel(conf.LogLevel())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, conf); err != nil {
		logger.WithError(err).Fatal("racestandings stopped")
	}
	logger.Info("racestandings stopped")
}

func applyFlags(conf *config.Config) {
	if logPath != "" {
		conf.Log.Path = logPath
	}
	if follow {
		conf.Log.Follow = true
	}
	if serve {
		conf.Webserver.Enabled = true
	}
	if raceKey != "" {
		conf.Race.Key = raceKey
	}
	if newRace {
		conf.Race.Key = uuid.NewString()
	}
}

func run(ctx context.Context, logger *logrus.Logger, conf config.Config) error {
	persister, closePersister, err := openPersister(conf.Storage, logger)
	if err != nil {
		return err
	}
	defer closePersister()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ps := pubsub.NewPubSub[model.Snapshot]()
	races := race.NewManager(conf.RaceManagerConfig(), persister, ps,
		race.WithLogger(logger),
		race.WithMetrics(race.NewMetrics(reg)),
	)
	defer races.Close()

	rc, err := races.Race(conf.Race.Key)
	if err != nil {
		return err
	}
	logger.WithField("race", rc.Key()).WithField("final_lap", conf.Race.FinalLap).Info("race opened")
	if resetRace {
		if err := rc.Reset(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	nm := notification.NewManager(gctx, ps, logger, notifiers(conf.Notifications, logger)...)
	g.Go(func() error {
		nm.Start()
		return nil
	})

	if conf.Webserver.Enabled {
		ws := webserver.NewManager(races, logger, reg)
		ws.Debug()
		g.Go(func() error {
			return ws.Serve(gctx, conf.Webserver.Address)
		})
	}

	if conf.Log.Path != "" {
		g.Go(func() error {
			summary, err := ingestLog(gctx, logger, rc, conf.Log)
			if err != nil {
				return err
			}
			render.Standings(os.Stdout, rc.Snapshot())
			render.WriteSummary(os.Stdout, summary)
			if !conf.Webserver.Enabled {
				// Nothing else to serve: closing the races lets the
				// notifier drain and return.
				return races.Close()
			}
			return nil
		})
	} else if !conf.Webserver.Enabled {
		logger.Warn("no timing log and no web server configured, nothing to do")
		return nil
	}

	return g.Wait()
}

func openPersister(sc config.StorageConfig, logger logrus.FieldLogger) (race.Persister, func(), error) {
	if sc.Path == "" {
		logger.Info("storage path empty, keeping races in memory")
		return race.NewMemoryPersister(), func() {}, nil
	}
	store, err := storage.Open(sc.Path)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("path", sc.Path).Info("storage opened")
	return store, func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Error("closing storage")
		}
	}, nil
}

func notifiers(nc config.NotificationsConfig, logger logrus.FieldLogger) []notify.Notifier {
	services := []notify.Notifier{notification.LogNotifier{Log: logger}}
	if nc.TelegramToken == "" {
		return services
	}
	tg, err := notification.NewTelegram(nc.TelegramToken)
	if err != nil {
		logger.WithError(err).Warn("telegram notifications disabled")
		return services
	}
	tg.AddReceivers(nc.TelegramChatIDs...)
	return append(services, tg)
}

// ingestLog reads the whole timing log as one batch, or line by line when
// following it.
func ingestLog(ctx context.Context, logger logrus.FieldLogger, rc *race.Race, lc config.LogConfig) (render.Summary, error) {
	summary := render.Summary{RaceKey: rc.Key()}
	start := time.Now()

	if !lc.Follow {
		f, err := os.Open(lc.Path)
		if err != nil {
			return summary, errors.Wrapf(err, "opening timing log %s", lc.Path)
		}
		defer f.Close()

		var lines []string
		if _, err := logsource.ReadAll(ctx, f, func(_ int, line string) error {
			lines = append(lines, line)
			return nil
		}); err != nil {
			return summary, err
		}

		res, err := rc.IngestBatch(lines)
		summary.Lines = len(lines)
		summary.Ingested = res.Ingested
		summary.Skipped = res.Skipped
		summary.Rejected = len(res.Rejected)
		summary.Elapsed = time.Since(start)
		return summary, err
	}

	log := logger.WithField("race", rc.Key())
	err := logsource.Follow(ctx, lc.Path, lc.PollInterval, func(n int, line string) error {
		summary.Lines++
		if n == 1 && parser.IsHeader(line) {
			summary.Skipped++
			return nil
		}

		out, err := rc.IngestLine(line)
		switch {
		case err == parser.ErrBlankLine:
			summary.Skipped++
		case errors.Is(err, race.ErrPersist):
			summary.Ingested++
			log.WithError(err).Error("standings not saved")
		case err != nil:
			summary.Rejected++
			log.WithError(err).WithField("line", n).Warn("rejected timing line")
		default:
			summary.Ingested++
			log.WithField("pilot", out.Standing.PilotCode).Debugf("lap ingested, position %d", out.Standing.FinishingPosition)
		}
		return nil
	})
	summary.Elapsed = time.Since(start)
	return summary, err
}
