package config

const (
	// DefaultWeb3RPC is the public Base Sepolia endpoint.
	DefaultWeb3RPC = "https://sepolia.base.org"
	// DefaultZeroDevProjectID identifies the ZeroDev project serving the
	// bundler and paymaster endpoints.
	DefaultZeroDevProjectID = "cf030020-fa8b-45a1-a8be-b5442f37e6f3"
	DefaultBundlerURL       = "https://rpc.zerodev.app/api/v2/bundler/" + DefaultZeroDevProjectID
	DefaultPaymasterURL     = "https://rpc.zerodev.app/api/v2/paymaster/" + DefaultZeroDevProjectID
	DefaultPasskeyServerURL = "https://passkeys.zerodev.app/api/v3/" + DefaultZeroDevProjectID
	DefaultExplorerTxURL    = "https://sepolia.basescan.org/tx/"

	// DefaultVotingContract is the two option voting contract.
	DefaultVotingContract = "0xB64ad1D84d59290d2C207bc4a66670CCA8431E43"

	// ERC-4337 and Kernel v3.1 deployments, identical on every chain.
	EntryPointV07        = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"
	KernelV31Factory     = "0xaac5D4240AF87249B3f71BC8E4A2cae074A3E419"
	KernelFactoryStaker  = "0xd703aaE79538628d27099B8c4f621bE4CCd142d5"
	KernelECDSAValidator = "0x845ADb2C711129d4f3966735eD98a9F09fC4cE57"

	// Semaphore v4 circuit artifacts, one set per tree depth.
	SemaphoreWasmURLTemplate = "https://snark-artifacts.pse.dev/semaphore/latest/semaphore-%d.wasm"
	SemaphoreZkeyURLTemplate = "https://snark-artifacts.pse.dev/semaphore/latest/semaphore-%d.zkey"
	SemaphoreVkeyURLTemplate = "https://snark-artifacts.pse.dev/semaphore/latest/semaphore-%d.json"
)
