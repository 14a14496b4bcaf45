package core

import "errors"

var (
	ErrNotAuthorizedOperator = errors.New("caller is not the pool's external operator")
	ErrSlippageTooHigh       = errors.New("amount outside slippage bounds")
	ErrDepositsPaused        = errors.New("deposits are paused")
	ErrWithdrawalsPaused     = errors.New("withdrawals are paused")
	ErrClaimsPaused          = errors.New("claims are paused")
	ErrNilReceiver           = errors.New("receiver must not be the zero account")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrSameToken             = errors.New("base and quote must differ")
)
