// Command shieldedpoold wires configuration, the substore-aware versioned
// KV, and the shielded-pool controller into a CometBFT node, then serves
// the read-only HTTP query surface and Prometheus metrics alongside it.
// Grounded on the teacher's main.go wiring order and
// pkg/consensus/bft_integration.go's node-construction sequence
// (dbm.NewDB via a DBProvider, privval.LoadFilePV, p2p.LoadNodeKey,
// node.NewNode), trimmed to this domain's dependency set.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	dbm "github.com/cometbft/cometbft-db"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/node"
	"github.com/cometbft/cometbft/p2p"
	"github.com/cometbft/cometbft/privval"
	"github.com/cometbft/cometbft/proxy"
	cmtconfig "github.com/cometbft/cometbft/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/penumbra-zone/penumbra-sub011/pkg/config"
	"github.com/penumbra-zone/penumbra-sub011/pkg/events"
	"github.com/penumbra-zone/penumbra-sub011/pkg/shieldedpool"
	"github.com/penumbra-zone/penumbra-sub011/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file")
	cometHome := flag.String("comet-home", "", "CometBFT root directory (defaults to <data-dir>/cometbft)")
	spendVKPath := flag.String("spend-vk", "", "path to the groth16 spend verifying key")
	outputVKPath := flag.String("output-vk", "", "path to the groth16 output verifying key")
	flag.Parse()

	if err := run(*configPath, *cometHome, *spendVKPath, *outputVKPath); err != nil {
		log.Fatalf("shieldedpoold: %v", err)
	}
}

func run(configPath, cometHome, spendVKPath, outputVKPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	db, err := dbm.NewGoLevelDB("shieldedpool", cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening backing store: %w", err)
	}
	store, err := storage.Load(storage.NewBackend(db), cfg.SubstoreNames)
	if err != nil {
		return fmt.Errorf("loading substore KV: %w", err)
	}

	recorder := events.NewRecorder(events.NewPrometheusSink(prometheus.DefaultRegisterer))
	if cfg.EventsDatabaseURL != "" {
		pg, err := events.NewPostgresSink(cfg.EventsDatabaseURL)
		if err != nil {
			return fmt.Errorf("opening events archival sink: %w", err)
		}
		defer pg.Close()
		recorder.Add(pg)
	}

	var verifier shieldedpool.ActionVerifier
	if spendVKPath != "" && outputVKPath != "" {
		spendVK, err := os.ReadFile(spendVKPath)
		if err != nil {
			return fmt.Errorf("reading spend verifying key: %w", err)
		}
		outputVK, err := os.ReadFile(outputVKPath)
		if err != nil {
			return fmt.Errorf("reading output verifying key: %w", err)
		}
		verifier, err = shieldedpool.NewGrothVerifier(spendVK, outputVK)
		if err != nil {
			return fmt.Errorf("loading verifying keys: %w", err)
		}
	} else {
		return fmt.Errorf("both -spend-vk and -output-vk are required")
	}

	controller := shieldedpool.NewController(
		store,
		verifier,
		shieldedpool.Ed25519Binding{},
		shieldedpool.StorageValidatorInfoSource{Store: store},
		recorder,
		cfg.EpochDuration,
		cfg.UnbondingEpochs,
	)
	app := shieldedpool.NewApp(controller, cfg.ChainID)

	go serveQueryHTTP(cfg.ListenAddr, store)
	go serveMetricsHTTP(cfg.MetricsAddr)

	if cometHome == "" {
		cometHome = filepath.Join(cfg.DataDir, "cometbft")
	}
	return runCometNode(cometHome, cfg, app)
}

// serveQueryHTTP exposes the plain net/http read-only query surface
// (compact blocks, known assets, nullifier status) over the latest
// committed snapshot.
func serveQueryHTTP(addr string, store *storage.Storage) {
	handlers := shieldedpool.NewQueryHandlers(store)
	mux := http.NewServeMux()
	mux.HandleFunc("/compact-block", handlers.HandleCompactBlock)
	mux.HandleFunc("/known-assets", handlers.HandleKnownAssets)
	mux.HandleFunc("/nullifier-status", handlers.HandleNullifierStatus)
	log.Printf("shieldedpoold: query HTTP listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("shieldedpoold: query HTTP server stopped: %v", err)
	}
}

// serveMetricsHTTP exposes the Prometheus registry used by
// events.PrometheusSink.
func serveMetricsHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("shieldedpoold: metrics HTTP listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("shieldedpoold: metrics HTTP server stopped: %v", err)
	}
}

// runCometNode constructs and runs an in-process CometBFT node hosting
// app, blocking until the process receives a termination signal.
func runCometNode(rootDir string, cfg *config.Config, app *shieldedpool.App) error {
	cometCfg := cmtconfig.DefaultConfig()
	cometCfg.RootDir = rootDir
	cometCfg.P2P.ListenAddress = "tcp://" + cfg.P2PAddr
	cometCfg.RPC.ListenAddress = "tcp://" + cfg.ListenAddr
	cometCfg.Moniker = cfg.ChainID
	cometCfg.DBBackend = "goleveldb"

	for _, dir := range []string{cometCfg.RootDir, filepath.Join(cometCfg.RootDir, "config"), filepath.Join(cometCfg.RootDir, "data")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("preparing cometbft directory %s: %w", dir, err)
		}
	}

	dbProvider := cmtconfig.DBProvider(func(ctx *cmtconfig.DBContext) (dbm.DB, error) {
		return dbm.NewDB(ctx.ID, dbm.BackendType(cometCfg.DBBackend), filepath.Join(cometCfg.RootDir, "data"))
	})

	pv := privval.LoadFilePV(cometCfg.PrivValidatorKeyFile(), cometCfg.PrivValidatorStateFile())
	nodeKey, err := p2p.LoadNodeKey(cometCfg.NodeKeyFile())
	if err != nil {
		return fmt.Errorf("loading node key: %w", err)
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("module", "cometbft")

	n, err := node.NewNode(
		cometCfg,
		pv,
		nodeKey,
		proxy.NewLocalClientCreator(app),
		node.DefaultGenesisDocProviderFunc(cometCfg),
		dbProvider,
		node.DefaultMetricsProvider(cometCfg.Instrumentation),
		logger,
	)
	if err != nil {
		return fmt.Errorf("creating cometbft node: %w", err)
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("starting cometbft node: %w", err)
	}
	defer n.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}
