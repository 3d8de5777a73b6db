package marketplace

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestSettlementDigestDeterministic(t *testing.T) {
	root := newTestRoot(0x11)
	first := SettlementDigest(root, 1_234_567_890)
	second := SettlementDigest(root, 1_234_567_890)
	if first != second {
		t.Fatalf("digest not deterministic")
	}
	if SettlementDigest(root, 1_234_567_891) == first {
		t.Fatalf("digest must change with the challenge")
	}
	if SettlementDigest(newTestRoot(0x12), 1_234_567_890) == first {
		t.Fatalf("digest must change with the root")
	}
}

func TestAttestationVerifierAcceptsAttestorSignature(t *testing.T) {
	key, attestor := mustGenerateAttestor(t)
	root := newTestRoot(0x11)
	challenge := uint64(5_555_555_555)

	proof := signSettlement(t, key, root, challenge)
	verifier := AttestationVerifier{}
	if !verifier.Verify(proof, root, challenge, attestor) {
		t.Fatalf("valid attestation rejected")
	}

	// Signatures with the legacy 27/28 recovery id are normalised.
	legacy := append([]byte(nil), proof...)
	legacy[64] += 27
	if !verifier.Verify(legacy, root, challenge, attestor) {
		t.Fatalf("legacy recovery id rejected")
	}
}

func TestAttestationVerifierRejections(t *testing.T) {
	key, attestor := mustGenerateAttestor(t)
	strangerKey, _ := mustGenerateAttestor(t)
	root := newTestRoot(0x11)
	challenge := uint64(5_555_555_555)
	proof := signSettlement(t, key, root, challenge)
	verifier := AttestationVerifier{}

	if verifier.Verify(signSettlement(t, strangerKey, root, challenge), root, challenge, attestor) {
		t.Fatalf("accepted signature from the wrong key")
	}
	if verifier.Verify(proof, newTestRoot(0x12), challenge, attestor) {
		t.Fatalf("accepted proof against the wrong root")
	}
	if verifier.Verify(proof, root, challenge+1, attestor) {
		t.Fatalf("accepted proof against the wrong challenge")
	}
	if verifier.Verify(proof[:64], root, challenge, attestor) {
		t.Fatalf("accepted truncated proof")
	}
	if verifier.Verify(nil, root, challenge, attestor) {
		t.Fatalf("accepted empty proof")
	}
	if verifier.Verify(proof, root, challenge, [20]byte{}) {
		t.Fatalf("accepted proof against the zero attestor")
	}

	mangled := append([]byte(nil), proof...)
	mangled[10] ^= 0xFF
	if verifier.Verify(mangled, root, challenge, attestor) {
		t.Fatalf("accepted mangled signature")
	}
}

func TestAttestationVerifierRecoversExpectedAddress(t *testing.T) {
	key, attestor := mustGenerateAttestor(t)
	if attestor == ([20]byte{}) {
		t.Fatalf("zero attestor address")
	}
	derived := ethcrypto.PubkeyToAddress(key.PublicKey)
	if [20]byte(derived) != attestor {
		t.Fatalf("address derivation mismatch")
	}
}
