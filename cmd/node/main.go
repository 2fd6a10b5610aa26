package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lendex-fi/lendex/params"
	"github.com/lendex-fi/lendex/pkg/api"
	"github.com/lendex-fi/lendex/pkg/app/core"
	"github.com/lendex-fi/lendex/pkg/app/core/book"
	"github.com/lendex-fi/lendex/pkg/app/core/ledger"
	"github.com/lendex-fi/lendex/pkg/oracle"
	"github.com/lendex-fi/lendex/pkg/protocol"
	"github.com/lendex-fi/lendex/pkg/storage"
	"github.com/lendex-fi/lendex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	store, err := storage.NewStore(cfg.Node.DBPath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	// Static oracle seeded at par; operators repost prices out of band.
	src := oracle.NewStaticOracle()
	src.Set(cfg.Genesis.CollateralAsset, core.PriceScale)
	src.Set(cfg.Genesis.LoanAsset, core.PriceScale)

	genesis := &ledger.ProtocolConfig{
		Owner:                   cfg.Genesis.Owner,
		Liquidator:              cfg.Genesis.Liquidator,
		Custody:                 cfg.Genesis.Custody,
		LiquidationDeadline:     cfg.Genesis.LiquidationDeadline,
		LiquidationThresholdBps: cfg.Genesis.LiquidationThresholdBps,
		LiquidationPenaltyBps:   cfg.Genesis.LiquidationPenaltyBps,
		CollateralAsset:         cfg.Genesis.CollateralAsset,
		LoanAsset:               cfg.Genesis.LoanAsset,
		StableAsset:             cfg.Genesis.StableAsset,
	}
	bookCfg := book.Config{
		TickMin:  cfg.Book.TickMin,
		TickMax:  cfg.Book.TickMax,
		TickStep: cfg.Book.TickStep,
	}

	engine, err := protocol.NewEngine(store, src, genesis, bookCfg, util.RealClock{}, logger)
	if err != nil {
		logger.Fatal("init engine", zap.Error(err))
	}

	server := api.NewServer(engine, logger)
	go func() {
		if err := server.Start(cfg.Node.ListenAddr); err != nil {
			logger.Fatal("api server", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}
