package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/aws_sqs"
	"github.com/IliaW/hotel-crawler/internal/broker"
	"github.com/IliaW/hotel-crawler/internal/browser"
	cacheClient "github.com/IliaW/hotel-crawler/internal/cache"
	"github.com/IliaW/hotel-crawler/internal/expand"
	"github.com/IliaW/hotel-crawler/internal/frontier"
	"github.com/IliaW/hotel-crawler/internal/gate"
	"github.com/IliaW/hotel-crawler/internal/ledger"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/persistence"
	"github.com/IliaW/hotel-crawler/internal/probe"
	"github.com/IliaW/hotel-crawler/internal/seeds"
	"github.com/IliaW/hotel-crawler/internal/telemetry"
	"github.com/IliaW/hotel-crawler/internal/worker"
	_ "github.com/lib/pq"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

var (
	cfg *config.Config
	db  *sql.DB
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	setupLogger()
	metrics := telemetry.SetupMetrics(context.Background(), cfg)
	defer metrics.Close()
	db = setupDatabase()
	defer closeDatabase()
	stateRepo := persistence.NewStateRepository(db, cfg.ServiceName+":"+cfg.Env)
	state, err := stateRepo.Load(ctx)
	if err != nil {
		slog.Error("failed to load crawl state.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	var seenCache cacheClient.SeenCache
	if cfg.CacheSettings.Enabled {
		mc := cacheClient.NewMemcachedClient(cfg.CacheSettings)
		defer mc.Close()
		seenCache = mc
	}
	dedup := ledger.New(state, seenCache, stateRepo)
	httpClient := setupHttpClient()
	kafkaDLQ := broker.NewKafkaDLQ(cfg.ServiceName, cfg.KafkaSettings.Producer)
	rateLimiter := rate.NewLimiter(rate.Every(cfg.WorkerSettings.TimeInterval), cfg.WorkerSettings.RequestsLimit)
	enrich, err := gate.Lookup(cfg.CrawlSettings.Enrichment)
	if err != nil {
		slog.Error("invalid enrichment configuration.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	slog.Info("starting application on port "+cfg.Port, slog.String("env", cfg.Env))

	threadNum := parallelWorkers()
	outputChan := make(chan *model.ExtractedListing, cfg.WorkerSettings.OutputQueueSize)
	frontierQueue := frontier.New()

	wg := &sync.WaitGroup{}
	wg.Add(1)
	kafkaSink := broker.NewKafkaSink(outputChan, metrics.KafkaMetrics, cfg.KafkaSettings.Producer, wg)
	go kafkaSink.Run()

	seedLoader := &seeds.Loader{
		Frontier:   frontierQueue,
		Cfg:        cfg,
		HttpClient: httpClient,
		DLQ:        kafkaDLQ,
		Metrics:    metrics.SeedMetrics,
	}
	if cfg.SeedSettings.Source == "sqs" {
		seedRowChan := make(chan *string, threadNum*2) // double the size to avoid blocking
		wg.Add(1)
		sqs := aws_sqs.NewSQSWorker(seedRowChan, metrics.SeedMetrics, cfg, wg)
		go sqs.SQSConsumer(ctx)
		frontierQueue.AddProducer()
		go seedLoader.ConsumeRows(seedRowChan)
	} else {
		frontierQueue.AddProducer()
		if err = seedLoader.Seed(ctx); err != nil {
			slog.Error("failed to seed the frontier.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		frontierQueue.RemoveProducer()
	}

	browserPool := browser.NewChromePool(cfg.BrowserSettings, cfg.WorkerSettings.UserAgent)
	defer browserPool.Close()

	workerWg := &sync.WaitGroup{}
	crawlWorker := &worker.CrawlWorker{
		Frontier:    frontierQueue,
		Browsers:    browserPool,
		Probe:       &probe.Probe{Cfg: cfg.CrawlSettings},
		Gate:        &gate.Gate{Cfg: cfg.CrawlSettings},
		Expander:    &expand.Expander{Frontier: frontierQueue, Cfg: cfg.CrawlSettings},
		Ledger:      dedup,
		OutputChan:  outputChan,
		RateLimiter: rateLimiter,
		Cfg:         cfg,
		Enrich:      enrich,
		Metrics:     metrics.CrawlMetrics,
		Wg:          workerWg,
	}
	for i := 0; i < threadNum; i++ {
		workerWg.Add(1)
		go crawlWorker.Run(ctx)
	}

	go healthCheckHandler()

	// Flush the crawl state as soon as an interruption signal arrives so a
	// migration or scale-down loses as little dedup progress as possible.
	go func() {
		<-ctx.Done()
		slog.Info("interruption signal received, flushing crawl state...")
		if flushErr := dedup.Flush(context.Background()); flushErr != nil {
			slog.Error("failed to flush crawl state.", slog.String("err", flushErr.Error()))
		}
	}()

	// Graceful shutdown.
	// 1. Workers stop on frontier exhaustion or an interruption signal.
	// 2. Close the frontier and the output channel.
	// 3. Wait till the kafka sink (and the sqs consumer, if any) drain.
	// 4. Flush the final crawl state, close database and memcached connections.
	workerWg.Wait()
	slog.Info("all crawl workers stopped.")
	frontierQueue.Close()
	close(outputChan)
	slog.Info("close outputChan.")
	wg.Wait()
	if err = dedup.Flush(context.Background()); err != nil {
		slog.Error("failed to flush crawl state.", slog.String("err", err.Error()))
	}
	slog.Info("crawler stopped.")
}

func setupLogger() *slog.Logger {
	envLogLevel := strings.ToLower(cfg.LogLevel)
	var slogLevel slog.Level
	err := slogLevel.UnmarshalText([]byte(envLogLevel))
	if err != nil {
		log.Printf("encountenred log level: '%s'. The package does not support custom log levels", envLogLevel)
		slogLevel = slog.LevelDebug
	}
	log.Printf("slog level overwritten to '%v'", slogLevel)
	slog.SetLogLoggerLevel(slogLevel)

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs,
			NoColor: func() bool {
				if cfg.Env == "local" {
					return false
				}
				return true
			}()}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

func setupDatabase() *sql.DB {
	slog.Info("connecting to the database...")
	connStr := fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		cfg.DbSettings.User,
		cfg.DbSettings.Password,
		cfg.DbSettings.Host,
		cfg.DbSettings.Port,
		cfg.DbSettings.Name,
	)
	database, err := sql.Open("postgres", connStr)
	if err != nil {
		slog.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		slog.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			slog.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				slog.Error("failed to establish database connection.")
				os.Exit(1)
			}
			slog.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	slog.Info("connected to the database!")

	return database
}

func closeDatabase() {
	slog.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		slog.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}

func setupHttpClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.HttpClientSettings.MaxIdleConnections,
		MaxIdleConnsPerHost: cfg.HttpClientSettings.MaxIdleConnectionsPerHost,
		MaxConnsPerHost:     cfg.HttpClientSettings.MaxConnectionsPerHost,
		IdleConnTimeout:     cfg.HttpClientSettings.IdleConnectionTimeout,
		TLSHandshakeTimeout: cfg.HttpClientSettings.TlsHandshakeTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.HttpClientSettings.DialTimeout,
			KeepAlive: cfg.HttpClientSettings.DialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.HttpClientSettings.TlsInsecureSkipVerify,
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.HttpClientSettings.RequestTimeout,
	}
}

// Set -1 to use all available CPUs
func parallelWorkers() int {
	customNumCPU := cfg.WorkerSettings.WorkersNum
	if customNumCPU == -1 {
		return runtime.NumCPU()
	}
	if customNumCPU <= 0 {
		slog.Error("workers number is 0 or less than -1")
		os.Exit(1)
	}

	return customNumCPU
}

func healthCheckHandler() {
	http.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		slog.Error("http server error", slog.String("err", err.Error()))
	}
}
