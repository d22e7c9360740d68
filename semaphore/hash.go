package semaphore

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/semaphore-aa-vote/util"
)

// Hash maps an arbitrary uint256 into the SNARK scalar field the same way the
// Semaphore contracts do: keccak256 of the 32 byte big-endian value, shifted
// right by 8 bits.
func Hash(v *big.Int) *big.Int {
	b := util.BigToBytes32(v)
	h := new(big.Int).SetBytes(crypto.Keccak256(b[:]))
	return h.Rsh(h, 8)
}

// Nullifier returns the nullifier an identity produces for a scope.
func Nullifier(scope, secret *big.Int) (*big.Int, error) {
	return poseidon.Hash([]*big.Int{Hash(scope), secret})
}

func hash2(a, b *big.Int) *big.Int {
	h, err := poseidon.Hash([]*big.Int{a, b})
	if err != nil {
		// only fails when an input is out of the field, which group inputs
		// are checked against
		panic(err)
	}
	return h
}
