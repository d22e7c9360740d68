package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/semaphore-aa-vote/config"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/semaphore"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/web3"
)

var addressRegexp = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

type output struct {
	UserAddress        string        `json:"userAddress"`
	IdentityCommitment *types.BigInt `json:"identityCommitment"`
	GroupID            *types.BigInt `json:"groupId,omitempty"`
	IsMember           *bool         `json:"isMember,omitempty"`
}

// Prints the Semaphore identity commitment derived from a smart account
// address, optionally checking it against the group of the paymaster.
func main() {
	address := flag.String("address", "", "smart account address, read from stdin if empty")
	rpc := flag.String("rpc", "", "web3 endpoint, enables the group membership check")
	paymaster := flag.String("paymaster", os.Getenv("NEXT_PUBLIC_PAYMASTER_CONTRACT"), "semaphore paymaster contract address")
	group := flag.String("group", os.Getenv("NEXT_PUBLIC_SEMAPHORE_GROUP_ID"), "semaphore group id")
	flag.Parse()
	log.Init(log.LogLevelError, "stderr", nil)

	addr := strings.TrimSpace(*address)
	if addr == "" {
		fmt.Fprint(os.Stderr, "smart account address: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("cannot read address: %v", err)
		}
		addr = strings.TrimSpace(line)
	}
	if !addressRegexp.MatchString(addr) {
		log.Fatalf("invalid address %q, expected 0x followed by 40 hex characters", addr)
	}
	account := common.HexToAddress(addr)
	id, err := semaphore.IdentityFromAddress(account)
	if err != nil {
		log.Fatal(err)
	}
	out := &output{
		UserAddress:        account.Hex(),
		IdentityCommitment: types.NewBigInt(id.Commitment()),
	}

	if *rpc != "" {
		if !common.IsHexAddress(*paymaster) {
			log.Fatalf("invalid paymaster address %q", *paymaster)
		}
		groupID, ok := new(big.Int).SetString(*group, 10)
		if !ok {
			log.Fatalf("invalid group id %q", *group)
		}
		contracts, err := web3.NewContracts(config.Addresses{
			Paymaster: common.HexToAddress(*paymaster),
		}, *rpc)
		if err != nil {
			log.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		isMember, err := contracts.HasMember(ctx, groupID, id.Commitment())
		if err != nil {
			log.Fatal(err)
		}
		out.GroupID = types.NewBigInt(groupID)
		out.IsMember = &isMember
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}
}
