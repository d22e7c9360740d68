package circuits

import (
	"fmt"

	"github.com/vocdoni/circom2gnark/parser"
)

// ParseCircomProof parses a snarkjs/rapidsnark proof and its public signals,
// as they are returned by the prover.
func ParseCircomProof(circomProof, pubSignals string) (*parser.CircomProof, []string, error) {
	proofData, err := parser.UnmarshalCircomProofJSON([]byte(circomProof))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid circom proof: %w", err)
	}
	pubSignalsData, err := parser.UnmarshalCircomPublicSignalsJSON([]byte(pubSignals))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid public signals: %w", err)
	}
	return proofData, pubSignalsData, nil
}

// VerifyGroth16 converts a circom Groth16 proof to gnark and verifies it with
// the snarkjs verification key provided. It returns an error if the key or
// the proof cannot be parsed or the proof is not valid.
func VerifyGroth16(vkey []byte, proof *parser.CircomProof, pubSignals []string) error {
	gnarkVKeyData, err := parser.UnmarshalCircomVerificationKeyJSON(vkey)
	if err != nil {
		return fmt.Errorf("invalid verification key: %w", err)
	}
	gnarkProof, err := parser.ConvertCircomToGnark(proof, gnarkVKeyData, pubSignals)
	if err != nil {
		return fmt.Errorf("cannot convert proof: %w", err)
	}
	ok, err := parser.VerifyProof(gnarkProof)
	if err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("proof verification failed")
	}
	return nil
}
