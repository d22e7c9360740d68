package semaphore

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestCircuitInputs(t *testing.T) {
	c := qt.New(t)
	id, err := NewIdentity("voter")
	c.Assert(err, qt.IsNil)
	g, err := NewGroup(big.NewInt(11), id.Commitment(), big.NewInt(12))
	c.Assert(err, qt.IsNil)
	mp, err := g.MemberProof(id.Commitment())
	c.Assert(err, qt.IsNil)
	c.Assert(ProofDepth(mp), qt.Equals, 2)

	message, scope := big.NewInt(1), big.NewInt(2)
	raw, err := CircuitInputs(id, mp, message, scope, 4)
	c.Assert(err, qt.IsNil)

	var inputs circuitInputs
	c.Assert(json.Unmarshal(raw, &inputs), qt.IsNil)
	c.Assert(inputs.Secret, qt.Equals, id.SecretScalar().String())
	c.Assert(inputs.MerkleProofLength, qt.Equals, uint64(2))
	c.Assert(inputs.MerkleProofIndex, qt.Equals, mp.Index)
	c.Assert(inputs.MerkleProofSiblings, qt.HasLen, 4)
	c.Assert(inputs.MerkleProofSiblings[2], qt.Equals, "0")
	c.Assert(inputs.MerkleProofSiblings[3], qt.Equals, "0")
	c.Assert(inputs.Message, qt.Equals, Hash(message).String())
	c.Assert(inputs.Scope, qt.Equals, Hash(scope).String())

	_, err = CircuitInputs(id, mp, message, scope, 1)
	c.Assert(err, qt.ErrorMatches, "merkle proof has 2 siblings.*")
	_, err = CircuitInputs(id, mp, message, scope, 0)
	c.Assert(err, qt.ErrorIs, ErrInvalidDepth)
	_, err = CircuitInputs(id, mp, message, scope, 33)
	c.Assert(err, qt.ErrorIs, ErrInvalidDepth)
}

func TestProofDepthSingleMember(t *testing.T) {
	c := qt.New(t)
	id, err := NewIdentity("alone")
	c.Assert(err, qt.IsNil)
	g, err := NewGroup(id.Commitment())
	c.Assert(err, qt.IsNil)
	mp, err := g.MemberProof(id.Commitment())
	c.Assert(err, qt.IsNil)
	c.Assert(mp.Siblings, qt.HasLen, 0)
	c.Assert(ProofDepth(mp), qt.Equals, 1)
}

func TestPackGroth16Proof(t *testing.T) {
	c := qt.New(t)
	proofJSON := []byte(`{
		"pi_a": ["1", "2", "1"],
		"pi_b": [["3", "4"], ["5", "6"], ["1", "0"]],
		"pi_c": ["7", "8", "1"],
		"protocol": "groth16"
	}`)
	points, err := PackGroth16Proof(proofJSON)
	c.Assert(err, qt.IsNil)
	want := []int64{1, 2, 4, 3, 6, 5, 7, 8}
	for i, w := range want {
		c.Assert(points[i].Int64(), qt.Equals, w)
	}

	unpacked, err := UnpackGroth16Proof(points)
	c.Assert(err, qt.IsNil)
	var p snarkProof
	c.Assert(json.Unmarshal(unpacked, &p), qt.IsNil)
	c.Assert(p.PiB[0], qt.DeepEquals, []string{"3", "4"})
	c.Assert(p.PiB[1], qt.DeepEquals, []string{"5", "6"})
	c.Assert(p.Protocol, qt.Equals, "groth16")

	_, err = PackGroth16Proof([]byte(`{"pi_a":["1"]}`))
	c.Assert(err, qt.ErrorMatches, "malformed groth16 proof")
	_, err = PackGroth16Proof([]byte(`{"pi_a":["x","2"],"pi_b":[["3","4"],["5","6"]],"pi_c":["7","8"]}`))
	c.Assert(err, qt.ErrorMatches, `invalid proof point "x"`)
}

func TestPublicSignals(t *testing.T) {
	c := qt.New(t)
	p := &Proof{
		MerkleTreeRoot: big.NewInt(10),
		Nullifier:      big.NewInt(20),
		Message:        big.NewInt(1),
		Scope:          big.NewInt(2),
	}
	signals := p.PublicSignals()
	c.Assert(signals, qt.DeepEquals, []string{"10", "20", Hash(big.NewInt(1)).String(), Hash(big.NewInt(2)).String()})
}

func TestGenerateProofNotMember(t *testing.T) {
	c := qt.New(t)
	id, err := NewIdentity("outsider")
	c.Assert(err, qt.IsNil)
	g, err := NewGroup(big.NewInt(1))
	c.Assert(err, qt.IsNil)
	pv := NewProver(ProverConfig{})
	_, err = pv.GenerateProof(context.Background(), id, g, big.NewInt(0), big.NewInt(2), 0)
	c.Assert(err, qt.ErrorIs, ErrMemberNotFound)

	err = pv.VerifyProof(context.Background(), &Proof{MerkleTreeDepth: 0})
	c.Assert(err, qt.ErrorIs, ErrInvalidDepth)
}

func TestNewProofChecksSignals(t *testing.T) {
	c := qt.New(t)
	id, err := NewIdentity("voter")
	c.Assert(err, qt.IsNil)
	g, err := NewGroup(big.NewInt(1), id.Commitment())
	c.Assert(err, qt.IsNil)
	mp, err := g.MemberProof(id.Commitment())
	c.Assert(err, qt.IsNil)

	message, scope := big.NewInt(1), big.NewInt(42)
	nullifier, err := Nullifier(scope, id.SecretScalar())
	c.Assert(err, qt.IsNil)
	proofJSON := []byte(`{"pi_a":["1","2","1"],"pi_b":[["3","4"],["5","6"],["1","0"]],"pi_c":["7","8","1"],"protocol":"groth16"}`)
	signals := func(root, nullifier *big.Int) []byte {
		data, err := json.Marshal([]string{root.String(), nullifier.String(), Hash(message).String(), Hash(scope).String()})
		c.Assert(err, qt.IsNil)
		return data
	}

	p, err := newProof(id, mp, message, scope, 1, proofJSON, signals(mp.Root, nullifier))
	c.Assert(err, qt.IsNil)
	c.Assert(p.Nullifier.Cmp(nullifier), qt.Equals, 0)
	c.Assert(p.MerkleTreeRoot.Cmp(g.Root()), qt.Equals, 0)
	c.Assert(p.MerkleTreeDepth, qt.Equals, uint64(1))
	c.Assert(p.Points[0].Int64(), qt.Equals, int64(1))

	_, err = newProof(id, mp, message, scope, 1, proofJSON, signals(mp.Root, big.NewInt(5)))
	c.Assert(err, qt.ErrorMatches, "proof nullifier 5 does not match .*")

	_, err = newProof(id, mp, message, scope, 1, proofJSON, signals(big.NewInt(7), nullifier))
	c.Assert(err, qt.ErrorMatches, "proof root 7 does not match .*")

	_, err = newProof(id, mp, message, scope, 1, proofJSON, []byte(`["1"]`))
	c.Assert(err, qt.ErrorMatches, "invalid public signals .*")
}
