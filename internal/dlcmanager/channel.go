package dlcmanager

import (
	"fmt"

	"github.com/get10101/10101-sub001/internal/dlcwire"
)

// ChannelState is the SignedChannel state machine, per spec.md §4.3.
// Renew covers both resize and rollover; the caller (trade executor)
// disambiguates by the owning Protocol.Kind.
type ChannelState uint8

const (
	ChannelEstablished ChannelState = iota
	ChannelSettledOffered
	ChannelSettledReceived
	ChannelSettledAccepted
	ChannelSettledConfirmed
	ChannelSettled
	ChannelRenewOffered
	ChannelRenewAccepted
	ChannelRenewConfirmed
	ChannelRenewFinalized
	ChannelClosing
	ChannelSettledClosing
	ChannelCollaborativeCloseOffered
	ChannelCollaborativelyClosed
	ChannelClosedPunished
)

func (s ChannelState) String() string {
	switch s {
	case ChannelEstablished:
		return "Established"
	case ChannelSettledOffered:
		return "SettledOffered"
	case ChannelSettledReceived:
		return "SettledReceived"
	case ChannelSettledAccepted:
		return "SettledAccepted"
	case ChannelSettledConfirmed:
		return "SettledConfirmed"
	case ChannelSettled:
		return "Settled"
	case ChannelRenewOffered:
		return "RenewOffered"
	case ChannelRenewAccepted:
		return "RenewAccepted"
	case ChannelRenewConfirmed:
		return "RenewConfirmed"
	case ChannelRenewFinalized:
		return "RenewFinalized"
	case ChannelClosing:
		return "Closing"
	case ChannelSettledClosing:
		return "SettledClosing"
	case ChannelCollaborativeCloseOffered:
		return "CollaborativeCloseOffered"
	case ChannelCollaborativelyClosed:
		return "CollaborativelyClosed"
	case ChannelClosedPunished:
		return "ClosedPunished"
	default:
		return "Unknown"
	}
}

// IsHalfOpen reports whether the state is one of the two channel-level
// "offered but not yet accepted" sub-states (ChannelSettledReceived,
// ChannelRenewOffered) that are rejected on reconnect, since the
// coordinator cannot tell whether the peer ever saw the offer.
func (s ChannelState) IsHalfOpen() bool {
	switch s {
	case ChannelSettledReceived, ChannelRenewOffered:
		return true
	default:
		return false
	}
}

// SignedChannel wraps successive contracts sharing one funding output.
type SignedChannel struct {
	ChannelID [32]byte
	State     ChannelState
	Active    Contract // the contract currently governing payouts
}

// Apply advances the channel state machine by one message, per spec.md
// §4.3.
func (sc *SignedChannel) Apply(msg dlcwire.Message) (dlcwire.Message, error) {
	switch m := msg.(type) {
	case *dlcwire.SettleOffer:
		if sc.State != ChannelEstablished {
			return sc.reject(m, "channel not Established for SettleOffer")
		}
		sc.State = ChannelSettledReceived
		return nil, nil

	case *dlcwire.SettleAccept:
		if sc.State != ChannelSettledOffered {
			return sc.reject(m, "channel not awaiting SettleAccept")
		}
		sc.State = ChannelSettledAccepted
		return &dlcwire.SettleConfirm{}, nil

	case *dlcwire.SettleConfirm:
		if sc.State != ChannelSettledReceived {
			return sc.reject(m, "channel not awaiting SettleConfirm")
		}
		sc.State = ChannelSettledConfirmed
		return &dlcwire.SettleFinalize{}, nil

	case *dlcwire.SettleFinalize:
		if sc.State != ChannelSettledAccepted {
			return sc.reject(m, "channel not awaiting SettleFinalize")
		}
		sc.State = ChannelSettled
		return nil, nil

	case *dlcwire.RenewOffer:
		if sc.State != ChannelEstablished && sc.State != ChannelSettled {
			return sc.reject(m, "channel not eligible for RenewOffer")
		}
		sc.State = ChannelRenewOffered
		return nil, nil

	case *dlcwire.RenewAccept:
		if sc.State != ChannelRenewOffered {
			return sc.reject(m, "channel not awaiting RenewAccept")
		}
		sc.State = ChannelRenewAccepted
		return &dlcwire.RenewConfirm{}, nil

	case *dlcwire.RenewConfirm:
		if sc.State != ChannelRenewOffered {
			return sc.reject(m, "channel not awaiting RenewConfirm")
		}
		sc.State = ChannelRenewConfirmed
		return &dlcwire.RenewFinalize{}, nil

	case *dlcwire.RenewFinalize:
		if sc.State != ChannelRenewAccepted {
			return sc.reject(m, "channel not awaiting RenewFinalize")
		}
		sc.State = ChannelRenewFinalized
		return &dlcwire.RenewRevoke{}, nil

	case *dlcwire.RenewRevoke:
		if sc.State != ChannelRenewConfirmed && sc.State != ChannelRenewFinalized {
			return sc.reject(m, "channel not awaiting RenewRevoke")
		}
		sc.State = ChannelEstablished
		return nil, nil

	case *dlcwire.RolloverOffer:
		if sc.State != ChannelEstablished {
			return sc.reject(m, "channel not eligible for RolloverOffer")
		}
		sc.State = ChannelRenewOffered
		return nil, nil

	case *dlcwire.RolloverAccept:
		if sc.State != ChannelRenewOffered {
			return sc.reject(m, "channel not awaiting RolloverAccept")
		}
		sc.State = ChannelRenewAccepted
		return &dlcwire.RolloverConfirm{}, nil

	case *dlcwire.RolloverConfirm:
		if sc.State != ChannelRenewOffered {
			return sc.reject(m, "channel not awaiting RolloverConfirm")
		}
		sc.State = ChannelRenewConfirmed
		return &dlcwire.RolloverFinalize{}, nil

	case *dlcwire.RolloverFinalize:
		if sc.State != ChannelRenewAccepted {
			return sc.reject(m, "channel not awaiting RolloverFinalize")
		}
		sc.State = ChannelRenewFinalized
		return &dlcwire.RolloverRevoke{}, nil

	case *dlcwire.RolloverRevoke:
		if sc.State != ChannelRenewConfirmed && sc.State != ChannelRenewFinalized {
			return sc.reject(m, "channel not awaiting RolloverRevoke")
		}
		sc.State = ChannelEstablished
		return nil, nil

	case *dlcwire.CollaborativeCloseOffer:
		sc.State = ChannelCollaborativeCloseOffered
		return nil, nil

	case *dlcwire.Reject:
		sc.State = ChannelClosing
		return nil, nil

	default:
		return sc.reject(msg, fmt.Sprintf("unexpected message %T for channel", msg))
	}
}

// OnReconnect rejects half-open offers and returns the channel to
// Established. A channel in ChannelCollaborativeCloseOffered is left as it
// is and no reply is sent; the pending close proposal is not accepted here.
func (sc *SignedChannel) OnReconnect() (dlcwire.Message, error) {
	switch {
	case sc.State.IsHalfOpen():
		sc.State = ChannelEstablished
		return dlcwire.NewReject(dlcwire.ReferenceId{}, "half-open offer abandoned on reconnect"), nil
	case sc.State == ChannelCollaborativeCloseOffered:
		return nil, nil // the proposal stays pending; nothing is sent
	default:
		return nil, nil
	}
}

func (sc *SignedChannel) reject(msg dlcwire.Message, reason string) (dlcwire.Message, error) {
	return dlcwire.NewReject(msg.Reference(), reason), nil
}
