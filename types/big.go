package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int wrapper which marshals as a decimal string in JSON and
// as a CBOR bignum, so on-chain uint256 values survive the API and storage
// round trips without loss.
type BigInt big.Int

// NewInt returns a BigInt initialized with x.
func NewInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// NewBigInt returns a copy of x as a BigInt. A nil x returns zero.
func NewBigInt(x *big.Int) *BigInt {
	if x == nil {
		return new(BigInt)
	}
	return (*BigInt)(new(big.Int).Set(x))
}

// MarshalText returns the decimal string representation of the big number.
func (i *BigInt) MarshalText() ([]byte, error) {
	return (*big.Int)(i).MarshalText()
}

// UnmarshalText parses a decimal or 0x prefixed hexadecimal string.
func (i *BigInt) UnmarshalText(data []byte) error {
	if _, ok := (*big.Int)(i).SetString(string(data), 0); !ok {
		return fmt.Errorf("invalid big number: %q", data)
	}
	return nil
}

// MarshalCBOR encodes the big number as a CBOR bignum.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(i.MathBigInt())
}

// UnmarshalCBOR decodes a CBOR bignum into the big number.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	bi := new(big.Int)
	if err := cbor.Unmarshal(data, bi); err != nil {
		return err
	}
	i.SetBigInt(bi)
	return nil
}

// String returns the decimal representation.
func (i *BigInt) String() string {
	return (*big.Int)(i).String()
}

// MathBigInt returns the value as a *big.Int. It shares the memory with i.
func (i *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(i)
}

// SetBigInt sets the value of i to x and returns i.
func (i *BigInt) SetBigInt(x *big.Int) *BigInt {
	(*big.Int)(i).Set(x)
	return i
}

// SetUint64 sets the value of i to x and returns i.
func (i *BigInt) SetUint64(x uint64) *BigInt {
	(*big.Int)(i).SetUint64(x)
	return i
}

// Equal reports whether i and j hold the same number.
func (i *BigInt) Equal(j *BigInt) bool {
	if i == nil || j == nil {
		return i == j
	}
	return (*big.Int)(i).Cmp((*big.Int)(j)) == 0
}

// IsZero reports whether i is nil or zero.
func (i *BigInt) IsZero() bool {
	return i == nil || (*big.Int)(i).Sign() == 0
}
