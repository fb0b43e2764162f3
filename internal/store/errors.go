package store

import "errors"

// Sentinel errors returned by store implementations, in the spirit of
// channeldb/error.go's package-level Err* vars.
var (
	ErrOrderNotFound              = errors.New("order not found")
	ErrOrderAlreadyActive         = errors.New("trader already has a non-terminal order")
	ErrMatchNotFound              = errors.New("match not found")
	ErrPositionNotFound           = errors.New("position not found")
	ErrPositionAlreadyActive      = errors.New("trader already has an active position")
	ErrDlcChannelNotFound         = errors.New("dlc channel not found")
	ErrProtocolNotFound           = errors.New("protocol not found")
	ErrFundingRateNotFound        = errors.New("no funding rate for this hour")
	ErrFundingFeeEventExists      = errors.New("funding fee event already exists")
	ErrDlcMessageAlreadyProcessed = errors.New("dlc message hash already processed")
	ErrNoLastOutboundMessage      = errors.New("no last outbound message for peer")
	ErrInvalidStateTransition     = errors.New("invalid state transition")
	ErrCollaborativeRevertNotFound = errors.New("no collaborative revert proposal for this channel")
)
