package core

import "errors"

// Error kinds surfaced by the chain engine, ledger and contract store. Callers
// compare with errors.Is; the chain engine wraps these with additional
// context using fmt.Errorf("...: %w", err) in the style of the teacher's
// pkg/utils.Wrap helper.
var (
	ErrInvalidTransaction    = errors.New("invalid transaction")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrContractNotFound      = errors.New("contract not found")
	ErrContractInactive      = errors.New("contract inactive")
	ErrFunctionNotImplemented = errors.New("function not implemented")
	ErrGasLimitExceeded      = errors.New("gas limit exceeded")
	ErrInvalidRating         = errors.New("invalid rating")
	ErrInvalidBlock          = errors.New("invalid block")
	ErrValidatorNotFound     = errors.New("validator not found")
	ErrMempoolEmpty          = errors.New("mempool empty")
	ErrNoValidatorAvailable  = errors.New("no validator available")
)
