package main

import (
	"flag"
	"os"

	"github.com/charmbracelet/log"

	"github.com/psantos/centavo/pkg/config"
	"github.com/psantos/centavo/pkg/importer"
	"github.com/psantos/centavo/pkg/ledger"
	"github.com/psantos/centavo/pkg/rules"
	"github.com/psantos/centavo/pkg/server"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "centavo",
	})

	var cfgFile string
	flag.StringVar(&cfgFile, "config", "", "config file path")
	flag.Parse()

	cfg, err := config.Build(cfgFile, nil)
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}
	if cfg.LogLevel == "debug" {
		logger.SetLevel(log.DebugLevel)
	}

	store, err := ledger.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("failed to open ledger store", "err", err, "db", cfg.DBPath)
	}
	defer store.Close()

	mutator := ledger.NewMutator(store, logger)
	classifier := rules.New(store, logger)
	imp := importer.New(store, mutator, classifier, logger)

	srv := server.New(cfg, logger, store, mutator, imp)
	logger.Info("starting server", "addr", cfg.ListenAddr, "db", cfg.DBPath)
	if err := srv.Start(cfg.ListenAddr); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
