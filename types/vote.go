package types

import (
	"fmt"
	"strings"
)

// VoteChoice is one of the two options of the voting contract.
type VoteChoice uint8

const (
	ChoiceA VoteChoice = 0
	ChoiceB VoteChoice = 1
)

// String returns "A" or "B".
func (v VoteChoice) String() string {
	switch v {
	case ChoiceA:
		return "A"
	case ChoiceB:
		return "B"
	default:
		return fmt.Sprintf("VoteChoice(%d)", uint8(v))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v VoteChoice) MarshalText() ([]byte, error) {
	if v != ChoiceA && v != ChoiceB {
		return nil, fmt.Errorf("invalid vote choice %d", v)
	}
	return []byte(v.String()), nil
}

// UnmarshalText accepts "A"/"B" (any case) or the numeric values "0"/"1".
func (v *VoteChoice) UnmarshalText(data []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(data))) {
	case "A", "0":
		*v = ChoiceA
	case "B", "1":
		*v = ChoiceB
	default:
		return fmt.Errorf("invalid vote choice %q", data)
	}
	return nil
}

// Tally holds the counters of the voting contract.
type Tally struct {
	VotesA *BigInt `json:"votesA"`
	VotesB *BigInt `json:"votesB"`
}
