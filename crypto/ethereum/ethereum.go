// Package ethereum wraps the secp256k1 keys used as smart account session
// signers.
package ethereum

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/semaphore-aa-vote/util"
)

// SignatureLength is the size of an ECDSA signature with recovery id.
const SignatureLength = ethcrypto.SignatureLength

// SignKeys holds an ECDSA key pair.
type SignKeys struct {
	Public  ecdsa.PublicKey
	Private ecdsa.PrivateKey
}

// NewSignKeys returns an empty SignKeys.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate creates a new random key pair.
func (k *SignKeys) Generate() error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return err
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// AddHexKey imports a hex encoded private key, with or without 0x prefix.
func (k *SignKeys) AddHexKey(privHex string) error {
	key, err := ethcrypto.HexToECDSA(util.TrimHex(privHex))
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	k.Private = *key
	k.Public = key.PublicKey
	return nil
}

// HexString returns the compressed public key and the private key as hex
// strings without prefix.
func (k *SignKeys) HexString() (string, string) {
	if k.Private.D == nil {
		return "", ""
	}
	pub := hex.EncodeToString(ethcrypto.CompressPubkey(&k.Public))
	priv := hex.EncodeToString(ethcrypto.FromECDSA(&k.Private))
	return pub, priv
}

// PrivateKeyBytes returns the raw 32 byte private key.
func (k *SignKeys) PrivateKeyBytes() []byte {
	return ethcrypto.FromECDSA(&k.Private)
}

// PublicKey returns the compressed public key.
func (k *SignKeys) PublicKey() []byte {
	return ethcrypto.CompressPubkey(&k.Public)
}

// Address returns the Ethereum address of the key pair.
func (k *SignKeys) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.Public)
}

// AddressString returns the EIP-55 checksummed address.
func (k *SignKeys) AddressString() string {
	return k.Address().Hex()
}

// SignEthereum signs the EIP-191 personal message hash of message. The
// recovery id of the returned signature is 0 or 1.
func (k *SignKeys) SignEthereum(message []byte) ([]byte, error) {
	if k.Private.D == nil {
		return nil, fmt.Errorf("no private key available")
	}
	return ethcrypto.Sign(accounts.TextHash(message), &k.Private)
}

// SignPersonal signs like SignEthereum but shifts the recovery id to 27/28 as
// expected by on-chain ecrecover based validators.
func (k *SignKeys) SignPersonal(message []byte) ([]byte, error) {
	sig, err := k.SignEthereum(message)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// AddrFromPublicKey returns the address of a compressed or uncompressed public
// key.
func AddrFromPublicKey(pub []byte) (common.Address, error) {
	var pubKey *ecdsa.PublicKey
	var err error
	switch len(pub) {
	case 33:
		pubKey, err = ethcrypto.DecompressPubkey(pub)
	case 65:
		pubKey, err = ethcrypto.UnmarshalPubkey(pub)
	default:
		return common.Address{}, fmt.Errorf("invalid public key length %d", len(pub))
	}
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}

// AddrFromSignature recovers the signer address of a personal signature over
// message. Both 0/1 and 27/28 recovery ids are accepted.
func AddrFromSignature(message, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
