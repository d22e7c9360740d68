package circuits

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

const testCircomProof = `{
	"pi_a": ["1", "2", "1"],
	"pi_b": [["3", "4"], ["5", "6"], ["1", "0"]],
	"pi_c": ["7", "8", "1"],
	"protocol": "groth16"
}`

func TestParseCircomProof(t *testing.T) {
	c := qt.New(t)
	proof, signals, err := ParseCircomProof(testCircomProof, `["10", "20"]`)
	c.Assert(err, qt.IsNil)
	c.Assert(proof, qt.Not(qt.IsNil))
	c.Assert(signals, qt.DeepEquals, []string{"10", "20"})

	_, _, err = ParseCircomProof("not a proof", `["10"]`)
	c.Assert(err, qt.ErrorMatches, "invalid circom proof: .*")
	_, _, err = ParseCircomProof(testCircomProof, "not signals")
	c.Assert(err, qt.ErrorMatches, "invalid public signals: .*")
}

func TestVerifyGroth16InvalidKey(t *testing.T) {
	c := qt.New(t)
	proof, signals, err := ParseCircomProof(testCircomProof, `["10", "20"]`)
	c.Assert(err, qt.IsNil)
	err = VerifyGroth16([]byte("not a key"), proof, signals)
	c.Assert(err, qt.ErrorMatches, "invalid verification key: .*")
}
