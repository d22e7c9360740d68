package web3

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const semaphorePaymasterABI = `[
{"type":"function","name":"hasMember","stateMutability":"view","inputs":[{"name":"groupId","type":"uint256"},{"name":"identityCommitment","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"getMerkleTreeSize","stateMutability":"view","inputs":[{"name":"groupId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getMerkleTreeRoot","stateMutability":"view","inputs":[{"name":"groupId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"verifyProof","stateMutability":"view","inputs":[{"name":"groupId","type":"uint256"},{"name":"proof","type":"tuple","components":[{"name":"merkleTreeDepth","type":"uint256"},{"name":"merkleTreeRoot","type":"uint256"},{"name":"nullifier","type":"uint256"},{"name":"message","type":"uint256"},{"name":"scope","type":"uint256"},{"name":"points","type":"uint256[8]"}]}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"addMember","stateMutability":"nonpayable","inputs":[{"name":"groupId","type":"uint256"},{"name":"identityCommitment","type":"uint256"}],"outputs":[]},
{"type":"function","name":"groupDeposits","stateMutability":"view","inputs":[{"name":"groupId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getDeposit","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"MemberAdded","anonymous":false,"inputs":[{"name":"groupId","type":"uint256","indexed":true},{"name":"index","type":"uint256","indexed":false},{"name":"identityCommitment","type":"uint256","indexed":false},{"name":"merkleTreeRoot","type":"uint256","indexed":false}]}
]`

const votingABI = `[
{"type":"function","name":"vote","stateMutability":"nonpayable","inputs":[{"name":"choice","type":"uint256"}],"outputs":[]},
{"type":"function","name":"votesA","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"votesB","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const gatekeeperABI = `[
{"type":"function","name":"enter","stateMutability":"nonpayable","inputs":[{"name":"_tokenIndex","type":"uint256"},{"name":"_identityCommitment","type":"uint256"}],"outputs":[]}
]`

const entryPointABI = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}
]`

const kernelFactoryABI = `[
{"type":"function","name":"getAddress","stateMutability":"view","inputs":[{"name":"data","type":"bytes"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
]`

const factoryStakerABI = `[
{"type":"function","name":"deployWithFactory","stateMutability":"payable","inputs":[{"name":"factory","type":"address"},{"name":"createData","type":"bytes"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
]`

const kernelABI = `[
{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[{"name":"_rootValidator","type":"bytes21"},{"name":"hook","type":"address"},{"name":"validatorData","type":"bytes"},{"name":"hookData","type":"bytes"},{"name":"initConfig","type":"bytes[]"}],"outputs":[]},
{"type":"function","name":"execute","stateMutability":"payable","inputs":[{"name":"execMode","type":"bytes32"},{"name":"executionCalldata","type":"bytes"}],"outputs":[]}
]`

// Parsed ABIs of the contracts the node calls or encodes calls for.
var (
	SemaphorePaymasterABI = mustParseABI(semaphorePaymasterABI)
	VotingABI             = mustParseABI(votingABI)
	GatekeeperABI         = mustParseABI(gatekeeperABI)
	EntryPointABI         = mustParseABI(entryPointABI)
	KernelFactoryABI      = mustParseABI(kernelFactoryABI)
	FactoryStakerABI      = mustParseABI(factoryStakerABI)
	KernelABI             = mustParseABI(kernelABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
