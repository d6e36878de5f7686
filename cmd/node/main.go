package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/orderswap/params"
	"github.com/uhyunpark/orderswap/pkg/api"
	"github.com/uhyunpark/orderswap/pkg/app/core/admin"
	"github.com/uhyunpark/orderswap/pkg/app/core/engine"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/registry"
	"github.com/uhyunpark/orderswap/pkg/app/core/transaction"
	"github.com/uhyunpark/orderswap/pkg/app/core/transfer"
	"github.com/uhyunpark/orderswap/pkg/crypto"
	"github.com/uhyunpark/orderswap/pkg/p2p"
	"github.com/uhyunpark/orderswap/pkg/storage"
	"github.com/uhyunpark/orderswap/pkg/util"
)

// nodeStore is everything the node persists in one place.
type nodeStore interface {
	registry.Store
	transfer.HoldingsStore
	engine.Recorder
	api.SettlementSource
	io.Closer
}

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	var logger *zap.Logger
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	store, err := openStore(cfg.Node.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	defer store.Close()

	var journal engine.Recorder = storage.NewNopJournal()
	if cfg.Node.JournalFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Node.JournalFile), 0755); err != nil {
			sugar.Fatalw("journal_dir_failed", "err", err)
		}
		fj, err := storage.NewFileJournal(cfg.Node.JournalFile)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Node.JournalFile, "err", err)
		}
		defer fj.Close()
		journal = fj
	}

	// ---- Exchange core ----
	ledger, err := transfer.NewLedger(store)
	if err != nil {
		sugar.Fatalw("ledger_load_failed", "err", err)
	}
	ledger.Logger = sugar

	settings, err := admin.NewSettings(cfg.Engine.FeeBps, cfg.Engine.FeeRecipient, ledger)
	if err != nil {
		sugar.Fatalw("settings_invalid", "err", err)
	}
	settings.Logger = sugar

	hasher := order.NewHasher(crypto.EIP712Domain{
		Name:              cfg.Engine.DomainName,
		Version:           cfg.Engine.DomainVersion,
		ChainID:           cfg.Engine.ChainID,
		VerifyingContract: cfg.Engine.VerifyingContract,
	})

	reg := registry.New(store)
	reg.Logger = sugar

	eng := engine.New(hasher, reg, settings, util.RealClock{})
	eng.Logger = sugar
	eng.Recorder = storage.Recorders{store, journal}

	sep, err := hasher.Signer().DomainSeparator()
	if err != nil {
		sugar.Fatalw("domain_invalid", "err", err)
	}
	sugar.Infow("engine_config",
		"fee_bps", cfg.Engine.FeeBps,
		"fee_recipient", cfg.Engine.FeeRecipient.Hex(),
		"domain", cfg.Engine.DomainName,
		"chain_id", cfg.Engine.ChainID.String(),
		"domain_separator", sep.Hex())

	// ---- API Server ----
	apiServer := api.NewServer(eng, store, cfg.Node.CORSOrigins, sugar)
	if cfg.Node.DevMint {
		apiServer.EnableDevMint(ledger)
	}

	// ---- Gossip (optional) ----
	var net *p2p.Libp2pNet
	if cfg.Node.EnableP2P {
		net, err = p2p.NewLibp2pNet(ctx, p2p.Libp2pConfig{
			ListenAddr: cfg.Node.P2PListen,
			Bootstrap:  cfg.Node.P2PBootstrap,
			Logger:     sugar,
		})
		if err != nil {
			sugar.Fatalw("libp2p_init_failed", "err", err)
		}
		defer net.Close()

		net.SetHandlers(p2p.EngineHandlers(eng, func(s *engine.Settlement) {
			apiServer.BroadcastSettlement(s, "peer")
		}, sugar))

		apiServer.OnCancel = func(req *transaction.CancelRequest) {
			if err := net.PublishCancel(ctx, req); err != nil {
				sugar.Warnw("gossip_cancel_failed", "err", err)
			}
		}
		for _, addr := range net.Addrs() {
			sugar.Infow("p2p_address", "addr", addr)
		}
	}

	// Hook engine to API server and peers: every committed settlement is pushed out
	eng.OnSettlement = func(s *engine.Settlement) {
		apiServer.BroadcastSettlement(s, "local")
		if net != nil {
			if err := net.PublishSettlement(ctx, s); err != nil {
				sugar.Warnw("gossip_settlement_failed", "id", s.ID, "err", err)
			}
		}
	}

	sugar.Infow("node_starting",
		"api_addr", cfg.Node.APIAddr,
		"data_dir", cfg.Node.DataDir,
		"p2p", cfg.Node.EnableP2P,
		"dev_mint", cfg.Node.DevMint)

	go logStats(ctx, sugar, apiServer)

	if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Fatalw("api_server_failed", "err", err)
	}
	sugar.Info("node_stopped")
}

func openStore(dir string) (nodeStore, error) {
	if dir == "" {
		return storage.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, err
	}
	ps, err := storage.NewPebbleStore(dir)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// logStats periodically reports connected WebSocket clients.
func logStats(ctx context.Context, sugar *zap.SugaredLogger, s *api.Server) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sugar.Infow("node_stats", "ws_clients", s.Hub().ClientCount())
		}
	}
}
