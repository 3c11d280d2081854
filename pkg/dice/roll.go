package dice

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/duskboard/sync/pkg/event"
	"github.com/duskboard/sync/pkg/identity"
)

// Request describes a single roll to perform.
type Request struct {
	Formula string
	Mode    event.DiceMode
}

// Roll performs req against mgr's identity: parses and validates the
// formula, draws cryptographically random dice, applies the
// Normal/Advantage/Disadvantage mode, and signs the resulting evidence
// with mgr's Ed25519 identity key. Advantage and Disadvantage are only
// valid when the formula's dice count is 2 — the mode documents how
// the total was derived from the rolled pair, the formula documents
// the effective dice.
func Roll(mgr *identity.Manager, req Request) (event.DiceRollBody, error) {
	f, err := ParseFormula(req.Formula)
	if err != nil {
		return event.DiceRollBody{}, err
	}
	if (req.Mode == event.DiceModeAdvantage || req.Mode == event.DiceModeDisadvantage) && f.Count != 2 {
		return event.DiceRollBody{}, fmt.Errorf("%w: %s requires exactly 2 dice, formula has %d", ErrFormulaInvalid, req.Mode, f.Count)
	}

	components, total, err := rollComponents(f, req.Mode)
	if err != nil {
		return event.DiceRollBody{}, err
	}
	total += f.Modifier

	id, err := mgr.Identity()
	if err != nil {
		return event.DiceRollBody{}, err
	}

	evidence := event.DiceEvidence{
		RollID:                     uuid.NewString(),
		RollerPeerID:               id.PeerID,
		RollerDeviceName:           id.DeviceName,
		RollerIdentityPublicKeyB64: identityPublicKeyB64(id),
		DiceCount:                  f.Count,
		DiceSides:                  f.Sides,
		Modifier:                   f.Modifier,
		Mode:                       req.Mode,
		Components:                components,
		Total:                      total,
		Formula:                    f.String(),
		Timestamp:                  time.Now().UTC(),
	}

	canonical, err := evidence.CanonicalBytes()
	if err != nil {
		return event.DiceRollBody{}, err
	}
	sig, err := mgr.Sign(canonical)
	if err != nil {
		return event.DiceRollBody{}, err
	}

	return event.DiceRollBody{Evidence: evidence, Signature: sig}, nil
}

// rollComponents draws f.Count dice of f.Sides, applying Advantage
// (keep the higher of a pair) or Disadvantage (keep the lower);
// Normal keeps every rolled die.
func rollComponents(f Formula, mode event.DiceMode) ([]event.DieComponent, int, error) {
	rolled := make([]int, f.Count)
	for i := range rolled {
		v, err := rollDie(f.Sides)
		if err != nil {
			return nil, 0, err
		}
		rolled[i] = v
	}

	switch mode {
	case event.DiceModeAdvantage, event.DiceModeDisadvantage:
		keepFirst := rolled[0] >= rolled[1]
		if mode == event.DiceModeDisadvantage {
			keepFirst = rolled[0] <= rolled[1]
		}
		components := []event.DieComponent{
			{Value: rolled[0], Kept: keepFirst},
			{Value: rolled[1], Kept: !keepFirst},
		}
		kept := rolled[0]
		if !keepFirst {
			kept = rolled[1]
		}
		return components, kept, nil
	default:
		components := make([]event.DieComponent, len(rolled))
		total := 0
		for i, v := range rolled {
			components[i] = event.DieComponent{Value: v, Kept: true}
			total += v
		}
		return components, total, nil
	}
}

func rollDie(sides int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(sides)))
	if err != nil {
		return 0, fmt.Errorf("dice: generate random die: %w", err)
	}
	return int(n.Int64()) + 1, nil
}

func identityPublicKeyB64(id identity.DeviceIdentity) string {
	return base64.StdEncoding.EncodeToString(id.IdentityPublicKey[:])
}
