package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/semaphore-aa-vote/config"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/web3"
)

// Watches the MemberAdded events of a group and prints every new member.
func main() {
	rpcs := flag.String("rpcs", config.DefaultWeb3RPC, "comma separated list of web3 endpoints")
	paymaster := flag.String("paymaster", os.Getenv("NEXT_PUBLIC_PAYMASTER_CONTRACT"), "semaphore paymaster contract address")
	group := flag.String("group", os.Getenv("NEXT_PUBLIC_SEMAPHORE_GROUP_ID"), "semaphore group id")
	fromBlock := flag.Uint64("from", 0, "first block to scan")
	interval := flag.Duration("interval", 5*time.Second, "polling interval")
	flag.Parse()
	log.Init("debug", "stdout", nil)

	if !common.IsHexAddress(*paymaster) {
		log.Fatalf("invalid paymaster address %q", *paymaster)
	}
	groupID, ok := new(big.Int).SetString(*group, 10)
	if !ok {
		log.Fatalf("invalid group id %q", *group)
	}
	contracts, err := web3.NewContracts(config.Addresses{
		Paymaster: common.HexToAddress(*paymaster),
	}, strings.Split(*rpcs, ",")...)
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("contracts initialized", "chainId", contracts.ChainID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	members, err := contracts.MonitorMembersByPolling(ctx, groupID, *fromBlock, *interval)
	if err != nil {
		log.Fatal(err)
	}
	log.Info("monitoring new members")
	for ev := range members {
		log.Infow("member added",
			"groupId", ev.GroupID.String(),
			"index", ev.Index.String(),
			"commitment", ev.Commitment.String(),
			"root", ev.Root.String(),
			"block", ev.BlockNumber,
			"tx", ev.TxHash.Hex())
	}
}
