package semaphore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/witness"
	"github.com/vocdoni/semaphore-aa-vote/circuits"
	"github.com/vocdoni/semaphore-aa-vote/log"
)

const (
	// MinTreeDepth and MaxTreeDepth bound the circuits published for
	// Semaphore v4.
	MinTreeDepth = 1
	MaxTreeDepth = 32
)

// ErrInvalidDepth is returned for a tree depth without circuit.
var ErrInvalidDepth = fmt.Errorf("merkle tree depth must be between %d and %d", MinTreeDepth, MaxTreeDepth)

// Proof is a Semaphore proof as the contracts take it. Message and Scope are
// the raw values; the circuit works with their Hash.
type Proof struct {
	MerkleTreeDepth uint64
	MerkleTreeRoot  *big.Int
	Nullifier       *big.Int
	Message         *big.Int
	Scope           *big.Int
	Points          [8]*big.Int
}

// snarkProof is the Groth16 proof layout written by rapidsnark and snarkjs.
type snarkProof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
}

// circuitInputs are the private and public inputs of the Semaphore circuit.
type circuitInputs struct {
	Secret              string   `json:"secret"`
	MerkleProofLength   uint64   `json:"merkleProofLength"`
	MerkleProofIndex    uint64   `json:"merkleProofIndex"`
	MerkleProofSiblings []string `json:"merkleProofSiblings"`
	Scope               string   `json:"scope"`
	Message             string   `json:"message"`
}

// ProofDepth returns the circuit depth used for a merkle proof when no depth
// is requested.
func ProofDepth(mp *MerkleProof) int {
	if len(mp.Siblings) == 0 {
		return 1
	}
	return len(mp.Siblings)
}

// CircuitInputs builds the JSON witness inputs for an identity, its merkle
// proof, message and scope. Siblings are padded with zeros up to depth.
func CircuitInputs(id *Identity, mp *MerkleProof, message, scope *big.Int, depth int) ([]byte, error) {
	if depth < MinTreeDepth || depth > MaxTreeDepth {
		return nil, ErrInvalidDepth
	}
	if len(mp.Siblings) > depth {
		return nil, fmt.Errorf("merkle proof has %d siblings, more than depth %d", len(mp.Siblings), depth)
	}
	siblings := make([]string, depth)
	for i := range siblings {
		siblings[i] = "0"
		if i < len(mp.Siblings) {
			siblings[i] = mp.Siblings[i].String()
		}
	}
	return json.Marshal(circuitInputs{
		Secret:              id.secretScalar.String(),
		MerkleProofLength:   uint64(len(mp.Siblings)),
		MerkleProofIndex:    mp.Index,
		MerkleProofSiblings: siblings,
		Scope:               Hash(scope).String(),
		Message:             Hash(message).String(),
	})
}

// PackGroth16Proof flattens a snarkjs proof into the eight points the
// verifier contract expects, with the G2 coordinates swapped.
func PackGroth16Proof(proofJSON []byte) ([8]*big.Int, error) {
	var points [8]*big.Int
	var p snarkProof
	if err := json.Unmarshal(proofJSON, &p); err != nil {
		return points, fmt.Errorf("cannot decode groth16 proof: %w", err)
	}
	if len(p.PiA) < 2 || len(p.PiB) < 2 || len(p.PiB[0]) < 2 || len(p.PiB[1]) < 2 || len(p.PiC) < 2 {
		return points, errors.New("malformed groth16 proof")
	}
	order := []string{
		p.PiA[0], p.PiA[1],
		p.PiB[0][1], p.PiB[0][0],
		p.PiB[1][1], p.PiB[1][0],
		p.PiC[0], p.PiC[1],
	}
	for i, s := range order {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return points, fmt.Errorf("invalid proof point %q", s)
		}
		points[i] = v
	}
	return points, nil
}

// UnpackGroth16Proof is the inverse of PackGroth16Proof. The result is a
// snarkjs proof in projective form.
func UnpackGroth16Proof(points [8]*big.Int) ([]byte, error) {
	for i, p := range points {
		if p == nil {
			return nil, fmt.Errorf("missing proof point %d", i)
		}
	}
	return json.Marshal(snarkProof{
		PiA: []string{points[0].String(), points[1].String(), "1"},
		PiB: [][]string{
			{points[3].String(), points[2].String()},
			{points[5].String(), points[4].String()},
			{"1", "0"},
		},
		PiC:      []string{points[6].String(), points[7].String(), "1"},
		Protocol: "groth16",
	})
}

// PublicSignals returns the circuit public outputs and inputs of the proof.
func (p *Proof) PublicSignals() []string {
	return []string{
		p.MerkleTreeRoot.String(),
		p.Nullifier.String(),
		Hash(p.Message).String(),
		Hash(p.Scope).String(),
	}
}

// ProverConfig holds the artifact URL templates, formatted with the depth.
type ProverConfig struct {
	WasmURLTemplate string
	ZkeyURLTemplate string
	VkeyURLTemplate string
}

// Prover generates and verifies Semaphore proofs, keeping the artifacts of
// each depth once they are loaded.
type Prover struct {
	conf      ProverConfig
	mu        sync.Mutex
	artifacts map[int]*circuits.CircuitArtifacts
}

// NewProver returns a prover for the given artifact templates.
func NewProver(conf ProverConfig) *Prover {
	return &Prover{
		conf:      conf,
		artifacts: make(map[int]*circuits.CircuitArtifacts),
	}
}

// Artifacts returns the circuit artifacts of the tree depth. They are loaded
// on first use.
func (pv *Prover) Artifacts(depth int) *circuits.CircuitArtifacts {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	ca, ok := pv.artifacts[depth]
	if !ok {
		ca = circuits.SemaphoreArtifacts(depth, pv.conf.WasmURLTemplate, pv.conf.ZkeyURLTemplate, pv.conf.VkeyURLTemplate)
		pv.artifacts[depth] = ca
	}
	return ca
}

// GenerateProof proves that id belongs to group and binds message and scope.
// When depth is zero it is taken from the merkle proof.
func (pv *Prover) GenerateProof(ctx context.Context, id *Identity, group *Group, message, scope *big.Int, depth int) (*Proof, error) {
	mp, err := group.MemberProof(id.Commitment())
	if err != nil {
		return nil, err
	}
	if depth == 0 {
		depth = ProofDepth(mp)
	}
	inputs, err := CircuitInputs(id, mp, message, scope, depth)
	if err != nil {
		return nil, err
	}
	ca := pv.Artifacts(depth)
	if err := ca.LoadProving(ctx); err != nil {
		return nil, err
	}
	finalInputs, err := witness.ParseInputs(inputs)
	if err != nil {
		return nil, fmt.Errorf("cannot parse circuit inputs: %w", err)
	}
	calc, err := witness.NewCircom2WitnessCalculator(ca.Wasm(), true)
	if err != nil {
		return nil, fmt.Errorf("cannot instance witness calculator: %w", err)
	}
	w, err := calc.CalculateWTNSBin(finalInputs, true)
	if err != nil {
		return nil, fmt.Errorf("cannot calculate witness: %w", err)
	}
	proofJSON, pubSignalsJSON, err := prover.Groth16ProverRaw(ca.ProvingKey(), w)
	if err != nil {
		return nil, fmt.Errorf("cannot generate proof: %w", err)
	}
	p, err := newProof(id, mp, message, scope, depth, []byte(proofJSON), []byte(pubSignalsJSON))
	if err != nil {
		return nil, err
	}
	log.Debugw("semaphore proof generated", "depth", depth, "root", mp.Root.String(), "nullifier", p.Nullifier.String())
	return p, nil
}

// newProof builds the proof from the prover output, checking that the root
// and nullifier it commits to are the ones expected for id.
func newProof(id *Identity, mp *MerkleProof, message, scope *big.Int, depth int, proofJSON, pubSignalsJSON []byte) (*Proof, error) {
	var pubSignals []string
	if err := json.Unmarshal(pubSignalsJSON, &pubSignals); err != nil || len(pubSignals) < 2 {
		return nil, fmt.Errorf("invalid public signals %q", pubSignalsJSON)
	}
	root, ok := new(big.Int).SetString(pubSignals[0], 10)
	if !ok {
		return nil, fmt.Errorf("invalid merkle root %q", pubSignals[0])
	}
	if root.Cmp(mp.Root) != 0 {
		return nil, fmt.Errorf("proof root %s does not match group root %s", root, mp.Root)
	}
	nullifier, ok := new(big.Int).SetString(pubSignals[1], 10)
	if !ok {
		return nil, fmt.Errorf("invalid nullifier %q", pubSignals[1])
	}
	expected, err := Nullifier(scope, id.secretScalar)
	if err != nil {
		return nil, fmt.Errorf("cannot compute nullifier: %w", err)
	}
	if nullifier.Cmp(expected) != 0 {
		return nil, fmt.Errorf("proof nullifier %s does not match identity nullifier %s", nullifier, expected)
	}
	points, err := PackGroth16Proof(proofJSON)
	if err != nil {
		return nil, err
	}
	return &Proof{
		MerkleTreeDepth: uint64(depth),
		MerkleTreeRoot:  new(big.Int).Set(mp.Root),
		Nullifier:       nullifier,
		Message:         new(big.Int).Set(message),
		Scope:           new(big.Int).Set(scope),
		Points:          points,
	}, nil
}

// VerifyProof checks the proof off-chain with the verification key of its
// depth.
func (pv *Prover) VerifyProof(ctx context.Context, p *Proof) error {
	if p.MerkleTreeDepth < MinTreeDepth || p.MerkleTreeDepth > MaxTreeDepth {
		return ErrInvalidDepth
	}
	ca := pv.Artifacts(int(p.MerkleTreeDepth))
	if err := ca.LoadVerifying(ctx); err != nil {
		return err
	}
	proofJSON, err := UnpackGroth16Proof(p.Points)
	if err != nil {
		return err
	}
	pubSignalsJSON, err := json.Marshal(p.PublicSignals())
	if err != nil {
		return err
	}
	circomProof, pubSignals, err := circuits.ParseCircomProof(string(proofJSON), string(pubSignalsJSON))
	if err != nil {
		return err
	}
	return circuits.VerifyGroth16(ca.VerifyingKey(), circomProof, pubSignals)
}
