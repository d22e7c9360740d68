package util

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexContains(t *testing.T) {
	c := qt.New(t)
	callData := []byte{0xe9, 0xae, 0x5c, 0x53, 0x17, 0x83, 0xef, 0xc3, 0x00}
	c.Assert(HexContains(callData, "1783efc3"), qt.IsTrue)
	c.Assert(HexContains(callData, "0x1783EFC3"), qt.IsTrue)
	c.Assert(HexContains(callData, "b64ad1d8"), qt.IsFalse)
	c.Assert(TrimHex("0Xabc"), qt.Equals, "abc")
	c.Assert(TrimHex("abc"), qt.Equals, "abc")
}

func TestBigToFF(t *testing.T) {
	c := qt.New(t)
	c.Assert(BigToFF(big.NewInt(5)).Int64(), qt.Equals, int64(5))
	c.Assert(BigToFF(new(big.Int).Set(SNARKScalarField)).Sign(), qt.Equals, 0)
	over := new(big.Int).Add(SNARKScalarField, big.NewInt(3))
	c.Assert(BigToFF(over).Int64(), qt.Equals, int64(3))
	c.Assert(BigToFF(big.NewInt(-1)).Cmp(new(big.Int).Sub(SNARKScalarField, big.NewInt(1))), qt.Equals, 0)
}

func TestBigToBytes32(t *testing.T) {
	c := qt.New(t)
	b := BigToBytes32(big.NewInt(0x0102))
	c.Assert(b[30], qt.Equals, byte(0x01))
	c.Assert(b[31], qt.Equals, byte(0x02))
	c.Assert(func() { BigToBytes32(new(big.Int).Lsh(big.NewInt(1), 256)) }, qt.PanicMatches, "value does not fit.*")
}

func TestRandomInt(t *testing.T) {
	c := qt.New(t)
	for i := 0; i < 100; i++ {
		n := RandomInt(40000, 60000)
		c.Assert(n >= 40000 && n < 60000, qt.IsTrue)
	}
	c.Assert(len(RandomHex(16)), qt.Equals, 32)
}
