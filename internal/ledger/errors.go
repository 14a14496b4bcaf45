package ledger

import "errors"

var (
	ErrDuplicatePool       = errors.New("pool id already bound")
	ErrUnknownPool         = errors.New("unknown pool")
	ErrWrongPoolKind       = errors.New("operation does not match pool kind")
	ErrUnsupportedDecimals = errors.New("token precision exceeds venue maximum")
	ErrAlreadySupported    = errors.New("token already active in pool")
	ErrLengthMismatch      = errors.New("tokens and hardcaps length mismatch")
	ErrUnknownToken        = errors.New("token not registered in pool")
	ErrTokenNotActive      = errors.New("token not active in pool")
	ErrUnknownInstrument   = errors.New("no instrument bound for token")
	ErrHardcapReached      = errors.New("hardcap reached")
	ErrInsufficientShares  = errors.New("insufficient active shares")
)
