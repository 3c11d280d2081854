// Package dice implements the dice signing/verification sub-protocol:
// canonical formula parsing and validation, roll construction (with
// cryptographically random dice), Ed25519 evidence signing, and a
// verification helper shared by the materializer.
package dice

import (
	"fmt"
	"strconv"
	"strings"
)

// Formula is a parsed canonical dice formula: NdS[+/-M].
type Formula struct {
	Count    int // N
	Sides    int // S
	Modifier int // M, may be negative; 0 if absent
}

// allowedSides is the closed set of permitted die sizes (§9
// supplemental: spec.md names FormulaOutOfRange but never defines the
// grammar or bounds, so this repo fixes them).
var allowedSides = map[int]bool{2: true, 3: true, 4: true, 6: true, 8: true, 10: true, 12: true, 20: true, 100: true}

const (
	minCount    = 1
	maxCount    = 100
	minModifier = -1000
	maxModifier = 1000
)

// ParseFormula parses and validates a canonical formula string of the
// form "NdS", "NdS+M" or "NdS-M" (e.g. "2d6+3"). It returns
// ErrFormulaInvalid for a malformed string and ErrFormulaOutOfRange
// for a well-formed one whose N, S or M falls outside the permitted
// bounds.
func ParseFormula(formula string) (Formula, error) {
	body := formula
	modifier := 0

	if idx := strings.IndexAny(body, "+-"); idx > 0 {
		modStr := body[idx:]
		body = body[:idx]
		m, err := strconv.Atoi(modStr)
		if err != nil {
			return Formula{}, fmt.Errorf("%w: modifier %q", ErrFormulaInvalid, modStr)
		}
		modifier = m
	}

	dIdx := strings.IndexByte(body, 'd')
	if dIdx <= 0 || dIdx == len(body)-1 {
		return Formula{}, fmt.Errorf("%w: %q", ErrFormulaInvalid, formula)
	}
	count, err := strconv.Atoi(body[:dIdx])
	if err != nil {
		return Formula{}, fmt.Errorf("%w: count %q", ErrFormulaInvalid, body[:dIdx])
	}
	sides, err := strconv.Atoi(body[dIdx+1:])
	if err != nil {
		return Formula{}, fmt.Errorf("%w: sides %q", ErrFormulaInvalid, body[dIdx+1:])
	}

	f := Formula{Count: count, Sides: sides, Modifier: modifier}
	if err := f.validateBounds(); err != nil {
		return Formula{}, err
	}
	return f, nil
}

func (f Formula) validateBounds() error {
	if f.Count < minCount || f.Count > maxCount {
		return fmt.Errorf("%w: count %d outside [%d,%d]", ErrFormulaOutOfRange, f.Count, minCount, maxCount)
	}
	if !allowedSides[f.Sides] {
		return fmt.Errorf("%w: sides %d not in the permitted set", ErrFormulaOutOfRange, f.Sides)
	}
	if f.Modifier < minModifier || f.Modifier > maxModifier {
		return fmt.Errorf("%w: modifier %d outside [%d,%d]", ErrFormulaOutOfRange, f.Modifier, minModifier, maxModifier)
	}
	return nil
}

// String renders the formula back to its canonical NdS[+/-M] form.
func (f Formula) String() string {
	base := fmt.Sprintf("%dd%d", f.Count, f.Sides)
	switch {
	case f.Modifier > 0:
		return fmt.Sprintf("%s+%d", base, f.Modifier)
	case f.Modifier < 0:
		return fmt.Sprintf("%s%d", base, f.Modifier)
	default:
		return base
	}
}
