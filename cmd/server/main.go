package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/seqlab/warehouse/internal/api"
	"github.com/seqlab/warehouse/internal/config"
	"github.com/seqlab/warehouse/internal/pipeline"
	"github.com/seqlab/warehouse/internal/store"
)

// Version info (set during build)
var Version = "dev"

func main() {
	configPath := flag.String("config", "warehouse.yml", "path to configuration file")
	runOnce := flag.Bool("once", false, "run one reconciliation pass and exit without serving")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading configuration", zap.Error(err))
	}
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("creating directories", zap.Error(err))
	}

	pipe := pipeline.New(cfg, logger)

	result, runErr := pipe.Run()
	if runErr != nil {
		// A failed run still carries a report worth serving; only exit
		// in one-shot mode.
		logger.Error("initial run failed", zap.Error(runErr))
		if *runOnce {
			os.Exit(1)
		}
	}

	if *runOnce {
		logger.Info("run complete",
			zap.String("run_id", result.Report.ID),
			zap.Int("records", result.Report.RecordCount),
			zap.Int("issues", result.Report.IssueCount()))
		return
	}

	handler := api.NewHandler(cfg, pipe, logger, Version)
	if result != nil {
		// A nil store leaves dataset endpoints answering 503 while the
		// report of the failed run stays visible.
		var st *store.Store
		if runErr == nil && len(result.Fields) > 0 {
			st, err = store.New(cfg.DatasetPath(), result.Fields)
			if err != nil {
				logger.Fatal("creating dataset store", zap.Error(err))
			}
			if err := st.LoadRows(result.Rows); err != nil {
				logger.Fatal("loading dataset store", zap.Error(err))
			}
		}
		handler.SetLatest(result, st)
	}

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)
	api.RegisterRoutes(e, handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	logger.Info("starting server", zap.String("addr", addr), zap.String("version", Version))
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
