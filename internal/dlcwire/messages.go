package dlcwire

import "io"

// Each TenTenOne* message wraps a tlvRecord carrying its ReferenceId and a
// protocol-specific opaque payload. The distinct Go types exist so the
// router and DLC manager can type-switch on the rust-dlc protocol step
// without re-parsing the payload, mirroring the way lnwire gives every
// Lightning message its own concrete type behind the Message interface
// even though several share an identical wire shape.

// Offer proposes a brand-new contract against a temporary contract id.
type Offer struct{ tlvRecord }

func (m *Offer) MsgType() MessageType      { return MsgOffer }
func (m *Offer) Reference() ReferenceId    { return m.reference }
func (m *Offer) Encode(w io.Writer) error  { return m.encode(w) }
func (m *Offer) Decode(r io.Reader) error  { return m.decode(r) }

// Accept answers an Offer with the accepting party's collateral and
// signatures.
type Accept struct{ tlvRecord }

func (m *Accept) MsgType() MessageType     { return MsgAccept }
func (m *Accept) Reference() ReferenceId   { return m.reference }
func (m *Accept) Encode(w io.Writer) error { return m.encode(w) }
func (m *Accept) Decode(r io.Reader) error { return m.decode(r) }

// Sign carries the offering party's signatures, completing the contract.
type Sign struct{ tlvRecord }

func (m *Sign) MsgType() MessageType     { return MsgSign }
func (m *Sign) Reference() ReferenceId   { return m.reference }
func (m *Sign) Encode(w io.Writer) error { return m.encode(w) }
func (m *Sign) Decode(r io.Reader) error { return m.decode(r) }

// SettleOffer proposes settling (closing) the active contract on a signed
// channel at a given outcome.
type SettleOffer struct{ tlvRecord }

func (m *SettleOffer) MsgType() MessageType     { return MsgSettleOffer }
func (m *SettleOffer) Reference() ReferenceId   { return m.reference }
func (m *SettleOffer) Encode(w io.Writer) error { return m.encode(w) }
func (m *SettleOffer) Decode(r io.Reader) error { return m.decode(r) }

// SettleAccept accepts a SettleOffer.
type SettleAccept struct{ tlvRecord }

func (m *SettleAccept) MsgType() MessageType     { return MsgSettleAccept }
func (m *SettleAccept) Reference() ReferenceId   { return m.reference }
func (m *SettleAccept) Encode(w io.Writer) error { return m.encode(w) }
func (m *SettleAccept) Decode(r io.Reader) error { return m.decode(r) }

// SettleConfirm carries the offerer's confirmation signatures for a
// settlement.
type SettleConfirm struct{ tlvRecord }

func (m *SettleConfirm) MsgType() MessageType     { return MsgSettleConfirm }
func (m *SettleConfirm) Reference() ReferenceId   { return m.reference }
func (m *SettleConfirm) Encode(w io.Writer) error { return m.encode(w) }
func (m *SettleConfirm) Decode(r io.Reader) error { return m.decode(r) }

// SettleFinalize closes out a settlement, revoking the prior commitment.
type SettleFinalize struct{ tlvRecord }

func (m *SettleFinalize) MsgType() MessageType     { return MsgSettleFinalize }
func (m *SettleFinalize) Reference() ReferenceId   { return m.reference }
func (m *SettleFinalize) Encode(w io.Writer) error { return m.encode(w) }
func (m *SettleFinalize) Decode(r io.Reader) error { return m.decode(r) }

// RenewOffer proposes a new contract sharing the existing funding output,
// used for both resize and rollover (disambiguated by Protocol.Kind).
type RenewOffer struct{ tlvRecord }

func (m *RenewOffer) MsgType() MessageType     { return MsgRenewOffer }
func (m *RenewOffer) Reference() ReferenceId   { return m.reference }
func (m *RenewOffer) Encode(w io.Writer) error { return m.encode(w) }
func (m *RenewOffer) Decode(r io.Reader) error { return m.decode(r) }

// RenewAccept accepts a RenewOffer.
type RenewAccept struct{ tlvRecord }

func (m *RenewAccept) MsgType() MessageType     { return MsgRenewAccept }
func (m *RenewAccept) Reference() ReferenceId   { return m.reference }
func (m *RenewAccept) Encode(w io.Writer) error { return m.encode(w) }
func (m *RenewAccept) Decode(r io.Reader) error { return m.decode(r) }

// RenewConfirm carries the offerer's confirmation signatures for a renewal.
type RenewConfirm struct{ tlvRecord }

func (m *RenewConfirm) MsgType() MessageType     { return MsgRenewConfirm }
func (m *RenewConfirm) Reference() ReferenceId   { return m.reference }
func (m *RenewConfirm) Encode(w io.Writer) error { return m.encode(w) }
func (m *RenewConfirm) Decode(r io.Reader) error { return m.decode(r) }

// RenewFinalize completes a renewal.
type RenewFinalize struct{ tlvRecord }

func (m *RenewFinalize) MsgType() MessageType     { return MsgRenewFinalize }
func (m *RenewFinalize) Reference() ReferenceId   { return m.reference }
func (m *RenewFinalize) Encode(w io.Writer) error { return m.encode(w) }
func (m *RenewFinalize) Decode(r io.Reader) error { return m.decode(r) }

// RenewRevoke revokes the commitment a renewal superseded.
type RenewRevoke struct{ tlvRecord }

func (m *RenewRevoke) MsgType() MessageType     { return MsgRenewRevoke }
func (m *RenewRevoke) Reference() ReferenceId   { return m.reference }
func (m *RenewRevoke) Encode(w io.Writer) error { return m.encode(w) }
func (m *RenewRevoke) Decode(r io.Reader) error { return m.decode(r) }

// RolloverOffer proposes a renewal that changes only the expiry.
type RolloverOffer struct{ tlvRecord }

func (m *RolloverOffer) MsgType() MessageType     { return MsgRolloverOffer }
func (m *RolloverOffer) Reference() ReferenceId   { return m.reference }
func (m *RolloverOffer) Encode(w io.Writer) error { return m.encode(w) }
func (m *RolloverOffer) Decode(r io.Reader) error { return m.decode(r) }

// RolloverAccept accepts a RolloverOffer.
type RolloverAccept struct{ tlvRecord }

func (m *RolloverAccept) MsgType() MessageType     { return MsgRolloverAccept }
func (m *RolloverAccept) Reference() ReferenceId   { return m.reference }
func (m *RolloverAccept) Encode(w io.Writer) error { return m.encode(w) }
func (m *RolloverAccept) Decode(r io.Reader) error { return m.decode(r) }

// RolloverConfirm carries the offerer's confirmation signatures for a
// rollover.
type RolloverConfirm struct{ tlvRecord }

func (m *RolloverConfirm) MsgType() MessageType     { return MsgRolloverConfirm }
func (m *RolloverConfirm) Reference() ReferenceId   { return m.reference }
func (m *RolloverConfirm) Encode(w io.Writer) error { return m.encode(w) }
func (m *RolloverConfirm) Decode(r io.Reader) error { return m.decode(r) }

// RolloverFinalize completes a rollover.
type RolloverFinalize struct{ tlvRecord }

func (m *RolloverFinalize) MsgType() MessageType     { return MsgRolloverFinalize }
func (m *RolloverFinalize) Reference() ReferenceId   { return m.reference }
func (m *RolloverFinalize) Encode(w io.Writer) error { return m.encode(w) }
func (m *RolloverFinalize) Decode(r io.Reader) error { return m.decode(r) }

// RolloverRevoke revokes the commitment a rollover superseded.
type RolloverRevoke struct{ tlvRecord }

func (m *RolloverRevoke) MsgType() MessageType     { return MsgRolloverRevoke }
func (m *RolloverRevoke) Reference() ReferenceId   { return m.reference }
func (m *RolloverRevoke) Encode(w io.Writer) error { return m.encode(w) }
func (m *RolloverRevoke) Decode(r io.Reader) error { return m.decode(r) }

// CollaborativeCloseOffer proposes the two-party signed escape hatch of
// spec.md §4.8.
type CollaborativeCloseOffer struct{ tlvRecord }

func (m *CollaborativeCloseOffer) MsgType() MessageType     { return MsgCollaborativeCloseOffer }
func (m *CollaborativeCloseOffer) Reference() ReferenceId   { return m.reference }
func (m *CollaborativeCloseOffer) Encode(w io.Writer) error { return m.encode(w) }
func (m *CollaborativeCloseOffer) Decode(r io.Reader) error { return m.decode(r) }

// Reject answers any of the above when the local state machine cannot
// accept it in its current state, per spec.md §4.3 "Transitions on
// message".
type Reject struct{ tlvRecord }

func (m *Reject) MsgType() MessageType     { return MsgReject }
func (m *Reject) Reference() ReferenceId   { return m.reference }
func (m *Reject) Encode(w io.Writer) error { return m.encode(w) }
func (m *Reject) Decode(r io.Reader) error { return m.decode(r) }

// NewReject builds a Reject answering the message that could not be
// accepted, copying its ReferenceId so the original sender can correlate
// the rejection.
func NewReject(ref ReferenceId, reason string) *Reject {
	return &Reject{tlvRecord{reference: ref, payload: []byte(reason)}}
}

// Reason returns the human-readable rejection reason carried in payload.
func (m *Reject) Reason() string { return string(m.payload) }
