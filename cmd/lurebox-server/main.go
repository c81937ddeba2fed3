package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lurebox/lurebox/internal/config"
	"github.com/lurebox/lurebox/internal/engage"
	"github.com/lurebox/lurebox/internal/gate"
	"github.com/lurebox/lurebox/internal/oracle"
	"github.com/lurebox/lurebox/internal/report"
	"github.com/lurebox/lurebox/internal/server"
	"github.com/lurebox/lurebox/internal/session"
	"github.com/lurebox/lurebox/internal/summarize"
)

// AppState holds all application services
type AppState struct {
	Logger       *zap.Logger
	Store        session.Store
	Gate         gate.Classifier
	GateModel    *gate.HugotClassifier
	Archive      *report.PostgresArchive
	Dispatcher   *report.Dispatcher
	Orchestrator *engage.Orchestrator
}

func main() {
	// Load configuration
	config.Load()

	logger := initLogger()
	defer logger.Sync()
	logger.Info("Configuration loaded", zap.String("source", "config.Load()"))

	ctx := context.Background()
	as, err := newAppState(ctx, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application state", zap.Error(err))
	}

	as.Dispatcher.Start()

	handler := server.NewHandler(as.Orchestrator, logger)
	router := server.SetupRouter(handler, config.Auth().APIKey, logger)

	addr := fmt.Sprintf("%s:%d", config.Http().Host, config.Http().Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	done := setupSignalHandler(as, srv, logger)

	logger.Info("Starting lurebox server", zap.String("address", addr))

	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	<-done
	logger.Info("Server shutdown complete")
}

// newAppState creates and initializes the application state
func newAppState(ctx context.Context, logger *zap.Logger) (*AppState, error) {
	redisCfg := config.Redis()
	store, err := session.NewRedisStore(ctx, session.RedisStoreConfig{
		Addr:      redisCfg.Addr(),
		Password:  redisCfg.Password,
		DB:        redisCfg.Database,
		KeyPrefix: redisCfg.KeyPrefix,
		TTL:       redisCfg.TTL(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	as := &AppState{Logger: logger, Store: store}

	as.Gate = initGate(as, logger)

	oracleCfg := config.Oracle()
	client := oracle.NewClient(oracle.ClientConfig{
		BaseURL: oracleCfg.BaseURL,
		APIKey:  oracleCfg.APIKey,
		Timeout: oracleCfg.Timeout(),
	}, logger)

	summarizer := summarize.NewSummarizer(client, oracleCfg.Model, logger)

	pgCfg := config.Postgres()
	if pgCfg.Enabled {
		archive, err := report.NewPostgresArchive(ctx, pgCfg.DSN(), logger)
		if err != nil {
			return nil, fmt.Errorf("report archive: %w", err)
		}
		as.Archive = archive
	}

	callbackCfg := config.Callback()
	var archiver report.Archiver
	if as.Archive != nil {
		archiver = as.Archive
	}
	as.Dispatcher = report.NewDispatcher(report.DispatcherConfig{
		CallbackURL: callbackCfg.URL,
		Timeout:     callbackCfg.Timeout(),
		Attempts:    callbackCfg.Attempts,
		QueueSize:   callbackCfg.QueueSize,
	}, summarizer, archiver, logger)

	engageCfg := config.Engage()
	as.Orchestrator = engage.NewOrchestrator(client, as.Gate, store, as.Dispatcher, engage.Config{
		Model:           oracleCfg.Model,
		MaxOutputTokens: oracleCfg.MaxOutputTokens,
		MaxReplyChars:   engageCfg.MaxReplyChars,
		TurnCeiling:     engageCfg.TurnCeiling,
		StopMinTurns:    engageCfg.StopMinTurns,
		HistoryTail:     engageCfg.HistoryTail,
		HistoryCap:      engageCfg.HistoryCap,
		Retry: oracle.RetryPolicy{
			Attempts:    oracleCfg.Retries,
			BackoffBase: oracleCfg.BackoffBaseDuration(),
			BackoffMax:  oracleCfg.BackoffMaxDuration(),
		},
	}, logger)

	return as, nil
}

// initGate loads the ONNX classifier when a model path is configured,
// falling back to keyword matching when it is absent or fails to load.
func initGate(as *AppState, logger *zap.Logger) gate.Classifier {
	gateCfg := config.Gate()
	if gateCfg.ModelPath != "" {
		classifier, err := gate.NewHugotClassifier(gateCfg.ModelPath, gateCfg.Threshold, logger)
		if err == nil {
			as.GateModel = classifier
			return classifier
		}
		logger.Warn("Gate model unavailable, using keyword fallback", zap.Error(err))
	}
	return gate.NewKeywordClassifier()
}

// setupSignalHandler configures graceful shutdown on SIGINT/SIGTERM
func setupSignalHandler(as *AppState, srv *http.Server, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}

		// Drain pending final reports before letting go of dependencies
		as.Dispatcher.Stop()

		if as.GateModel != nil {
			if err := as.GateModel.Close(); err != nil {
				logger.Warn("Failed to close gate classifier", zap.Error(err))
			}
		}
		if as.Archive != nil {
			if err := as.Archive.Close(); err != nil {
				logger.Warn("Failed to close report archive", zap.Error(err))
			}
		}
		if err := as.Store.Close(); err != nil {
			logger.Warn("Failed to close session store", zap.Error(err))
		}

		close(done)
	}()

	return done
}

func initLogger() *zap.Logger {
	logConfig := config.Logger()

	var cfg zap.Config
	if logConfig.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	switch logConfig.Level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	return logger
}
