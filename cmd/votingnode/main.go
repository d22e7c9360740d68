package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/semaphore-aa-vote/api"
	"github.com/vocdoni/semaphore-aa-vote/bundler"
	"github.com/vocdoni/semaphore-aa-vote/config"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/passkey"
	"github.com/vocdoni/semaphore-aa-vote/paymaster"
	"github.com/vocdoni/semaphore-aa-vote/semaphore"
	"github.com/vocdoni/semaphore-aa-vote/service"
	"github.com/vocdoni/semaphore-aa-vote/storage"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/voting"
	"github.com/vocdoni/semaphore-aa-vote/web3"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	rpcs := flag.String("rpcs", strings.Join(cfg.Web3RPCs, ","), "comma separated list of web3 endpoints")
	flag.StringVar(&cfg.BundlerURL, "bundler", cfg.BundlerURL, "ERC-4337 bundler endpoint")
	flag.StringVar(&cfg.PaymasterURL, "paymaster", cfg.PaymasterURL, "ZeroDev paymaster endpoint")
	flag.StringVar(&cfg.GroupID, "group", cfg.GroupID, "semaphore group id")
	flag.StringVar(&cfg.API.Host, "host", cfg.API.Host, "API listen host")
	flag.IntVar(&cfg.API.Port, "port", cfg.API.Port, "API listen port")
	flag.StringVar(&cfg.Storage.Dir, "datadir", cfg.Storage.Dir, "data directory, in-memory storage if empty")
	flag.StringVar(&cfg.Log.Level, "logLevel", cfg.Log.Level, "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.Log.Output, "logOutput", cfg.Log.Output, "log output (stdout, stderr or a file path)")
	localVerify := flag.Bool("localVerify", false, "verify the proofs with the verification key before sending them")
	preload := flag.String("preloadDepths", "", "comma separated tree depths whose circuit artifacts are downloaded at start")
	flag.Parse()
	log.Init(cfg.Log.Level, cfg.Log.Output, nil)

	cfg.Web3RPCs = strings.Split(*rpcs, ",")
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	groupID, err := cfg.Group()
	if err != nil {
		log.Fatal(err)
	}
	addresses := cfg.Addresses()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// storage
	var database db.Database
	if cfg.Storage.Dir == "" {
		log.Warn("no data directory set, using in-memory storage")
		database = memdb.New()
	} else if database, err = metadb.New(db.TypePebble, cfg.Storage.Dir); err != nil {
		log.Fatal(err)
	}
	stg := storage.New(database)
	defer stg.Close()

	// chain, bundler and paymasters
	contracts, err := web3.NewContracts(addresses, cfg.Web3RPCs...)
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("contracts initialized", "chainId", contracts.ChainID, "paymaster", addresses.Paymaster.Hex())
	bundlerClient, err := bundler.Dial(ctx, cfg.BundlerURL)
	if err != nil {
		log.Fatal(err)
	}
	zerodev, err := paymaster.DialZeroDev(ctx, cfg.PaymasterURL, contracts.ChainIDBig())
	if err != nil {
		log.Fatal(err)
	}
	prover := semaphore.NewProver(semaphore.ProverConfig{
		WasmURLTemplate: cfg.Circuits.WasmURLTemplate,
		ZkeyURLTemplate: cfg.Circuits.ZkeyURLTemplate,
		VkeyURLTemplate: cfg.Circuits.VkeyURLTemplate,
	})
	if depths := parseDepths(*preload); len(depths) > 0 {
		log.Infow("downloading circuit artifacts", "depths", depths)
		if err := service.DownloadArtifacts(10*time.Minute, prover, *localVerify, depths...); err != nil {
			log.Fatal(err)
		}
	}

	votingService, err := voting.New(voting.Config{
		ChainID:        contracts.ChainIDBig(),
		GroupID:        groupID,
		Addresses:      addresses,
		ExplorerTxURL:  cfg.ExplorerTxURL,
		WhitelistURL:   cfg.WhitelistURL,
		ReceiptTimeout: cfg.ReceiptTimeout,
		SessionTTL:     cfg.Passkey.TokenTTL,
		LocalVerify:    *localVerify,
	}, contracts, bundlerClient, &paymaster.Policy{
		EntryPoint:         addresses.EntryPoint,
		SemaphorePaymaster: addresses.Paymaster,
		Estimator:          bundlerClient,
		ZeroDev:            zerodev,
	}, prover)
	if err != nil {
		log.Fatal(err)
	}

	// passkeys
	rp, err := passkey.New(cfg.Passkey, stg)
	if err != nil {
		log.Fatal(err)
	}
	tokens, err := passkey.NewTokens(cfg.Passkey.TokenSeed, cfg.Passkey.TokenTTL)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Passkey.TokenSeed == "" {
		log.Warn("no session token seed set, tokens will not survive a restart")
	}

	// background services
	monitor := service.NewMemberMonitor(contracts, stg, groupID, cfg.MonitorInterval)
	if err := monitor.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer monitor.Stop()
	purger := service.NewPurgeService(rp, cfg.Passkey.CeremonyTTL)
	if err := purger.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer purger.Stop()

	apiService := service.NewAPI(&api.APIConfig{
		Host:     cfg.API.Host,
		Port:     cfg.API.Port,
		Storage:  stg,
		Passkeys: rp,
		Tokens:   tokens,
		Voting:   votingService,
		Info: api.NodeInfo{
			ChainID:       contracts.ChainID,
			GroupID:       types.NewBigInt(groupID),
			Addresses:     addresses,
			ExplorerTxURL: cfg.ExplorerTxURL,
		},
	})
	if err := apiService.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer apiService.Stop()
	host, port := apiService.HostPort()
	log.Infow("voting node ready", "host", host, "port", port, "groupId", groupID.String())

	<-ctx.Done()
	log.Info("shutting down")
}

// parseDepths reads a comma separated list of tree depths, skipping the
// invalid ones.
func parseDepths(s string) []int {
	var depths []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		depth, err := strconv.Atoi(part)
		if err != nil || depth < semaphore.MinTreeDepth || depth > semaphore.MaxTreeDepth {
			log.Warnw("ignoring invalid tree depth", "depth", part)
			continue
		}
		depths = append(depths, depth)
	}
	return depths
}
