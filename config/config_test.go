package config

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestLoadDefaults(t *testing.T) {
	c := qt.New(t)
	t.Setenv("NEXT_PUBLIC_PAYMASTER_CONTRACT", "")
	t.Setenv("NEXT_PUBLIC_SEMAPHORE_GROUP_ID", "")

	cfg, err := Load()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Web3RPCs, qt.DeepEquals, []string{DefaultWeb3RPC})
	c.Assert(cfg.BundlerURL, qt.Equals, DefaultBundlerURL)
	c.Assert(cfg.PaymasterURL, qt.Equals, DefaultPaymasterURL)
	c.Assert(cfg.VotingContract, qt.Equals, DefaultVotingContract)
	c.Assert(cfg.EntryPoint, qt.Equals, EntryPointV07)
	c.Assert(cfg.ReceiptTimeout, qt.Equals, 60*time.Second)
	c.Assert(cfg.Passkey.RPOrigins, qt.DeepEquals, []string{"http://localhost:3000"})
	c.Assert(cfg.Circuits.WasmURLTemplate, qt.Equals, SemaphoreWasmURLTemplate)

	// paymaster, gatekeeper and group are mandatory
	c.Assert(cfg.Validate(), qt.ErrorMatches, `(?s).*missing paymaster contract address.*`)
}

func TestLoadFromEnv(t *testing.T) {
	c := qt.New(t)
	t.Setenv("NEXT_PUBLIC_PAYMASTER_CONTRACT", "0x1111111111111111111111111111111111111111")
	t.Setenv("NEXT_PUBLIC_GATEKEEPER_CONTRACT", "0x2222222222222222222222222222222222222222")
	t.Setenv("NEXT_PUBLIC_SEMAPHORE_GROUP_ID", "2")
	t.Setenv("VOTE_WEB3_RPCS", "http://a,http://b")
	t.Setenv("VOTE_BUNDLER_URL", "http://bundler")

	cfg, err := Load()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Validate(), qt.IsNil)
	c.Assert(cfg.Web3RPCs, qt.DeepEquals, []string{"http://a", "http://b"})
	c.Assert(cfg.BundlerURL, qt.Equals, "http://bundler")

	group, err := cfg.Group()
	c.Assert(err, qt.IsNil)
	c.Assert(group.Int64(), qt.Equals, int64(2))
	c.Assert(cfg.Addresses().Gatekeeper.Hex(), qt.Equals, "0x2222222222222222222222222222222222222222")
}

func TestValidateGroup(t *testing.T) {
	c := qt.New(t)
	cfg := &Config{GroupID: "-4"}
	_, err := cfg.Group()
	c.Assert(err, qt.ErrorMatches, `invalid semaphore group id "-4"`)
}
