package orderbook

import "errors"

var (
	errUnsupportedAppVersion = errors.New("trader app version not supported for market orders")
	errNonPositivePrice      = errors.New("limit order price must be positive")
	errNotAMaker             = errors.New("trader is not on the maker allow-list")
	errNotOrderOwner         = errors.New("order does not belong to trader")
	errOrderAlreadyTerminal  = errors.New("order is already in a terminal state")
)
