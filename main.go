package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/url-scrape-archiver/config"
	"github.com/IliaW/url-scrape-archiver/internal/api"
	"github.com/IliaW/url-scrape-archiver/internal/archiver"
	"github.com/IliaW/url-scrape-archiver/internal/auth"
	"github.com/IliaW/url-scrape-archiver/internal/aws_s3"
	"github.com/IliaW/url-scrape-archiver/internal/broker"
	cacheClient "github.com/IliaW/url-scrape-archiver/internal/cache"
	"github.com/IliaW/url-scrape-archiver/internal/crawler"
	"github.com/IliaW/url-scrape-archiver/internal/extractor"
	"github.com/IliaW/url-scrape-archiver/internal/model"
	"github.com/IliaW/url-scrape-archiver/internal/persistence"
	"github.com/IliaW/url-scrape-archiver/internal/storage"
	"github.com/IliaW/url-scrape-archiver/internal/validator"
	"github.com/IliaW/url-scrape-archiver/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

var (
	cfg          *config.Config
	log          *slog.Logger
	db           *sql.DB
	store        storage.ArtifactStore
	throttle     cacheClient.Throttle
	metadataRepo persistence.MetadataStorage
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	log = setupLogger()
	store = setupStore()
	throttle = setupThrottle()
	defer throttle.Close()
	if cfg.DbSettings.Enabled {
		db = setupDatabase()
		defer closeDatabase()
		metadataRepo = persistence.NewMetadataRepository(db, log)
	}

	packager := archiver.NewCommandPackager(cfg.ArchiveSettings.ToolPath, cfg.ArchiveSettings.ToolTimeout, log)
	archiveService, err := archiver.NewArchiveService(cfg.ArchiveSettings, store, packager, log)
	if err != nil {
		log.Error("failed to create archive service.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var eventChan chan *model.ArtifactEvent
	kafkaWg := &sync.WaitGroup{}
	if cfg.KafkaSettings.Producer.Enabled {
		eventChan = make(chan *model.ArtifactEvent, 100)
		kafkaWg.Add(1)
		go broker.NewKafkaProducer(eventChan, cfg.KafkaSettings.Producer, log, kafkaWg).Run()
	}

	scrapeWorker := &worker.ScrapeWorker{
		Validator:  validator.New(cfg.ValidatorSetting.MaxURLLength),
		Fetcher:    crawler.NewFetchService(cfg.FetcherSettings, log),
		Extractor:  extractor.NewExtractor(),
		Archiver:   archiveService,
		Throttle:   throttle,
		Db:         metadataRepo,
		OutputChan: eventChan,
		Log:        log,
		Version:    cfg.Version,
	}

	if strings.ToLower(cfg.Env) != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(scrapeWorker, store, auth.NewVerifier(cfg.AuthSettings.JwtSecret),
		cfg.AuthSettings.CookieName, log)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a scrape holds the connection for the fetch and the packaging tool
		WriteTimeout: cfg.FetcherSettings.Timeout + cfg.ArchiveSettings.ToolTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting application on port "+cfg.Port, slog.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.WriteTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// Graceful shutdown.
	// 1. Stop accepting requests and wait for in-flight scrapes.
	// 2. Close eventChan. The producer flushes the last batch and stops.
	// 3. Close database and memcached connections.
	if err = g.Wait(); err != nil {
		log.Error("server stopped with error.", slog.String("err", err.Error()))
	}
	if eventChan != nil {
		close(eventChan)
		log.Info("close eventChan.")
		kafkaWg.Wait()
	}
}

func setupLogger() *slog.Logger {
	resolvedLogLevel := func() slog.Level {
		envLogLevel := strings.ToLower(cfg.LogLevel)
		switch envLogLevel {
		case "info":
			return slog.LevelInfo
		case "warn":
			return slog.LevelWarn
		case "error":
			return slog.LevelError
		default:
			return slog.LevelDebug
		}
	}

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
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs,
			NoColor:     false}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

func setupStore() storage.ArtifactStore {
	if cfg.ArchiveSettings.Storage == "s3" {
		return aws_s3.NewS3BucketClient(cfg.S3Settings, log)
	}
	localStore, err := storage.NewLocalStore(cfg.ArchiveSettings.Dir, log)
	if err != nil {
		log.Error("failed to prepare artifact directory.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("artifacts are stored locally.", slog.String("dir", cfg.ArchiveSettings.Dir))

	return localStore
}

func setupThrottle() cacheClient.Throttle {
	if cfg.CacheSettings.Servers == "" {
		log.Info("memcached servers are not set, using in-process throttle.")
		return cacheClient.NewLocalThrottle(cfg.ThrottleSettings, log)
	}
	return cacheClient.NewMemcachedClient(cfg.CacheSettings, cfg.ThrottleSettings, log)
}

func setupDatabase() *sql.DB {
	log.Info("connecting to the database...")
	sqlCfg := mysql.Config{
		User:                 cfg.DbSettings.User,
		Passwd:               cfg.DbSettings.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%s", cfg.DbSettings.Host, cfg.DbSettings.Port),
		DBName:               cfg.DbSettings.Name,
		AllowNativePasswords: true,
		ParseTime:            true,
	}
	database, err := sql.Open("mysql", sqlCfg.FormatDSN())
	if err != nil {
		log.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		log.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			log.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				log.Error("failed to establish database connection.")
				os.Exit(1)
			}
			log.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	log.Info("connected to the database!")

	return database
}

func closeDatabase() {
	log.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		log.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}
