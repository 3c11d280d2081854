package dice

import "errors"

// Sentinel errors for dice formula parsing and roll construction (§7
// taxonomy: FormulaInvalid, FormulaOutOfRange).
var (
	ErrFormulaInvalid    = errors.New("dice: formula is not well-formed")
	ErrFormulaOutOfRange = errors.New("dice: formula exceeds permitted bounds")
)
