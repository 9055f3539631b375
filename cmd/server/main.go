package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"janus/api/grpcserver"
	"janus/api/wsfeed"
	"janus/domain/book"
	"janus/engine"
	"janus/infra/config"
	"janus/infra/kafka"
	"janus/infra/logging"
	"janus/infra/storage"
	entrywal "janus/infra/wal/entry"
	"janus/infra/wal/outbox"
	"janus/jobs/broadcaster"
	"janus/resolution"
	"janus/service"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		cfg = config.Default()
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Dir)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---------------- durable layers ----------------

	wal, err := entrywal.Open(entrywal.Config{
		Dir:         cfg.WAL.Dir,
		SegmentSize: cfg.WAL.SegmentSize,
	})
	if err != nil {
		log.Error("entry wal init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer wal.Close()

	out, err := outbox.Open(cfg.Outbox.Dir)
	if err != nil {
		log.Error("outbox init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer out.Close()

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		log.Error("storage init failed", slog.Any("error", err))
		os.Exit(1)
	}

	// ---------------- streaming layers ----------------

	hub := wsfeed.NewHub(log)
	go hub.Run(ctx)

	var quotes *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		quotes = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.QuoteTopic)
		defer quotes.Close()
	}

	// ---------------- engine ----------------

	var svc *service.Service

	eng := engine.New(engine.Config{
		InboxSize: cfg.Engine.InboxSize,
		Rule:      book.RuleByName(cfg.Engine.CrossRule),
		WAL:       wal,
		Sink:      sinkFunc(func() *service.Service { return svc }),
		DumpDir:   cfg.Logging.Dir,
		Log:       log,
	})

	coord := resolution.New(eng, store, out, nil, log)
	svc = service.New(service.Deps{
		Engine:      eng,
		Coordinator: coord,
		WAL:         wal,
		Outbox:      out,
		Quotes:      quotes,
		Feed:        hub,
		ChaosDefaults: engine.EventConfig{
			ChaosEnabled:     cfg.Chaos.Enabled,
			ChaosSeed:        cfg.Chaos.Seed,
			ChaosRateBound:   cfg.Chaos.RatePerSec,
			ChaosMaxQty:      cfg.Chaos.MaxQty,
			ChaosPriceJitter: cfg.Chaos.PriceJitter,
		},
		Log: log,
	})

	// rebuild state before accepting traffic
	if err := service.Bootstrap(eng, cfg.WAL.Dir, cfg.WAL.Dir, log); err != nil {
		log.Error("bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}
	eng.Start(ctx)
	svc.ScheduleDeadlines()

	// ---------------- background jobs ----------------

	svc.StartSnapshotJob(ctx, cfg.WAL.Dir, time.Minute)
	svc.StartReclaimJob(ctx, time.Duration(cfg.Engine.EpochIntervalSec)*time.Second)

	if len(cfg.Kafka.Brokers) > 0 {
		bc, err := broadcaster.New(out, broadcaster.Config{
			Brokers:         cfg.Kafka.Brokers,
			FillTopic:       cfg.Kafka.FillTopic,
			SettlementTopic: cfg.Kafka.SettlementTopic,
		}, log)
		if err != nil {
			log.Error("broadcaster init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer bc.Close()
		bc.Start(ctx)
	}

	// ---------------- transports ----------------

	httpSrv := &http.Server{Addr: cfg.Server.WSAddr}
	http.HandleFunc("/feed", hub.ServeWS)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ws server exited", slog.Any("error", err))
		}
	}()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error("listen failed", slog.Any("error", err))
		os.Exit(1)
	}

	grpcSrv := grpc.NewServer()
	grpcserver.NewServer(svc).Register(grpcSrv)

	go func() {
		<-ctx.Done()
		shutdownCtx, sc := context.WithTimeout(context.Background(), 5*time.Second)
		defer sc()
		_ = httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
	}()

	log.Info("engine serving",
		slog.String("grpc", cfg.Server.GRPCAddr),
		slog.String("ws", cfg.Server.WSAddr))
	if err := grpcSrv.Serve(lis); err != nil {
		log.Error("grpc server exited", slog.Any("error", err))
	}
	_ = wal.Sync()
}

// sinkFunc defers sink resolution: the service needs the engine and the
// engine needs the sink. Fills only flow after Start, by which time the
// service exists.
type sinkFunc func() *service.Service

func (f sinkFunc) OnFill(fl book.Fill) {
	if s := f(); s != nil {
		s.OnFill(fl)
	}
}

func (f sinkFunc) OnQuote(eventID uint64, q book.Quote) {
	if s := f(); s != nil {
		s.OnQuote(eventID, q)
	}
}
