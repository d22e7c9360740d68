package semaphore

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/dchest/blake512"
	"github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/semaphore-aa-vote/util"
)

// Identity is a Semaphore v4 identity: an EdDSA-Poseidon key pair over
// BabyJubJub plus the commitment that is inserted in groups.
type Identity struct {
	privateKey   []byte
	secretScalar *big.Int
	publicKey    *babyjub.Point
	commitment   *big.Int
}

// NewIdentity derives the identity whose private key is the UTF-8 encoding of
// privateKey. The same string always yields the same identity.
func NewIdentity(privateKey string) (*Identity, error) {
	if privateKey == "" {
		return nil, errors.New("empty identity private key")
	}
	return newIdentity([]byte(privateKey))
}

// NewRandomIdentity creates an identity from 32 random bytes, hex encoded
// so the private key can be exported as a string.
func NewRandomIdentity() (*Identity, error) {
	return NewIdentity(util.RandomHex(32))
}

// IdentityFromAddress derives the identity bound to an account address. The
// EIP-55 checksummed form is used as the private key.
func IdentityFromAddress(addr common.Address) (*Identity, error) {
	return NewIdentity(addr.Hex())
}

func newIdentity(key []byte) (*Identity, error) {
	secret := deriveSecretScalar(key)
	pub := babyjub.NewPoint().Mul(secret, babyjub.B8)
	commitment, err := poseidon.Hash([]*big.Int{pub.X, pub.Y})
	if err != nil {
		return nil, fmt.Errorf("cannot compute identity commitment: %w", err)
	}
	return &Identity{
		privateKey:   key,
		secretScalar: secret,
		publicKey:    pub,
		commitment:   commitment,
	}, nil
}

// deriveSecretScalar hashes the key with BLAKE-512, prunes the low half as
// in EdDSA and reduces it to the BabyJubJub subgroup order.
func deriveSecretScalar(key []byte) *big.Int {
	h := blake512.New()
	h.Write(key)
	digest := h.Sum(nil)

	buf := make([]byte, 32)
	copy(buf, digest[:32])
	buf[0] &= 0xF8
	buf[31] &= 0x7F
	buf[31] |= 0x40

	// little-endian to big-endian
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	s := new(big.Int).SetBytes(buf)
	s.Rsh(s, 3)
	return s.Mod(s, babyjub.SubOrder)
}

// PrivateKey returns the private key as a string.
func (id *Identity) PrivateKey() string {
	return string(id.privateKey)
}

// SecretScalar returns a copy of the secret used as circuit input.
func (id *Identity) SecretScalar() *big.Int {
	return new(big.Int).Set(id.secretScalar)
}

// PublicKey returns the BabyJubJub public key.
func (id *Identity) PublicKey() *babyjub.Point {
	return babyjub.NewPoint().Mul(id.secretScalar, babyjub.B8)
}

// Commitment returns a copy of the identity commitment.
func (id *Identity) Commitment() *big.Int {
	return new(big.Int).Set(id.commitment)
}
