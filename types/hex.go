package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a []byte which encodes as a 0x prefixed hexadecimal string.
type HexBytes []byte

// String returns the 0x prefixed hex representation.
func (b HexBytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

// MarshalText implements encoding.TextMarshaler.
func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText accepts hex strings with or without the 0x prefix.
func (b *HexBytes) UnmarshalText(data []byte) error {
	s := strings.TrimPrefix(strings.TrimPrefix(string(data), "0x"), "0X")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex bytes: %w", err)
	}
	*b = decoded
	return nil
}

// HexStringToHexBytes decodes s into HexBytes, panicking on malformed input.
// Only meant for constants.
func HexStringToHexBytes(s string) HexBytes {
	b := HexBytes{}
	if err := b.UnmarshalText([]byte(s)); err != nil {
		panic(err)
	}
	return b
}
