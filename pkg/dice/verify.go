package dice

import (
	"encoding/base64"
	"fmt"

	"github.com/duskboard/sync/pkg/event"
	"github.com/duskboard/sync/pkg/identity"
)

// VerifyEvidence recomputes the canonical bytes of evidence and checks
// signature against the roller's embedded identity public key. It
// returns (false, err) when the evidence cannot even be parsed (a
// corrupt base64 public key or a canonicalization failure) so the
// caller — the materializer, at event materialization time — can log
// the reason while still treating the roll as signature_valid = false
// per §4.E.
func VerifyEvidence(evidence event.DiceEvidence, signature [64]byte) (bool, error) {
	pubKey, err := base64.StdEncoding.DecodeString(evidence.RollerIdentityPublicKeyB64)
	if err != nil {
		return false, fmt.Errorf("dice: unparseable roller public key: %w", err)
	}
	canonical, err := evidence.CanonicalBytes()
	if err != nil {
		return false, fmt.Errorf("dice: evidence failed to canonicalize: %w", err)
	}
	return identity.Verify(canonical, signature[:], pubKey), nil
}
