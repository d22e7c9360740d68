package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// RandomBytes generates a random byte slice of length n.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return b
}

// RandomHex generates a random hex string of n bytes.
func RandomHex(n int) string {
	return fmt.Sprintf("%x", RandomBytes(n))
}

// RandomInt generates a random integer between min and max.
func RandomInt(min, max int) int {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(max-min)))
	if err != nil {
		panic(err)
	}
	return int(num.Int64()) + min
}

// TrimHex trims the '0x' prefix from a hex string.
func TrimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// HexContains reports whether the hex encoding of data contains the hex
// fragment provided, ignoring a 0x prefix and the letter case.
func HexContains(data []byte, fragment string) bool {
	return strings.Contains(fmt.Sprintf("%x", data), strings.ToLower(TrimHex(fragment)))
}

// SNARKScalarField is the BN254 scalar field, the field where circom circuits
// and Semaphore values live.
var SNARKScalarField = fr.Modulus()

// BigToFF function returns the finite field representation of the big.Int
// provided. It uses Euclidean Modulus and the BN254 curve scalar field to
// represent the provided number.
func BigToFF(iv *big.Int) *big.Int {
	z := big.NewInt(0)
	if c := iv.Cmp(SNARKScalarField); c == 0 {
		return z
	} else if c != 1 && iv.Cmp(z) != -1 {
		return iv
	}
	return z.Mod(iv, SNARKScalarField)
}

// BigToBytes32 returns the 32 byte big-endian representation of v. It panics
// if v does not fit.
func BigToBytes32(v *big.Int) [32]byte {
	var out [32]byte
	if v.Sign() < 0 || v.BitLen() > 256 {
		panic(fmt.Sprintf("value does not fit in 32 bytes: %s", v))
	}
	v.FillBytes(out[:])
	return out
}
