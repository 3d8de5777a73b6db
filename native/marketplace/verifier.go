package marketplace

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ProofVerifier validates a settlement proof against the public inputs the
// engine derives from the matched listing and order. The engine only acts on
// the boolean outcome; the proof payload is opaque to it.
type ProofVerifier interface {
	Verify(proof []byte, root [32]byte, challenge uint64, attestor [20]byte) bool
}

// SettlementDigest derives the message the proof must cover: the keccak256
// hash of the listing root concatenated with the big-endian challenge nonce.
func SettlementDigest(root [32]byte, challenge uint64) [32]byte {
	buf := make([]byte, len(root)+8)
	copy(buf, root[:])
	binary.BigEndian.PutUint64(buf[len(root):], challenge)
	hash := ethcrypto.Keccak256(buf)
	var digest [32]byte
	copy(digest[:], hash)
	return digest
}

// AttestationVerifier accepts a 65-byte secp256k1 signature over the
// settlement digest as proof. The proof verifies when the recovered signer
// matches the configured attestor address.
type AttestationVerifier struct{}

// Verify implements the ProofVerifier interface.
func (AttestationVerifier) Verify(proof []byte, root [32]byte, challenge uint64, attestor [20]byte) bool {
	if len(proof) != 65 {
		return false
	}
	if attestor == ([20]byte{}) {
		return false
	}
	sig := append([]byte(nil), proof...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	digest := SettlementDigest(root, challenge)
	pub, err := ethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return false
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	return [20]byte(recovered) == attestor
}
