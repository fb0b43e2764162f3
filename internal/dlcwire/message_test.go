package dlcwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	ref := ReferenceId{1, 2, 3}
	offer := &Offer{tlvRecord{reference: ref, payload: []byte("contract-info-blob")}}

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, offer)
	require.NoError(t, err)

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, MsgOffer, got.MsgType())
	require.Equal(t, ref, got.Reference())

	gotOffer, ok := got.(*Offer)
	require.True(t, ok)
	require.Equal(t, "contract-info-blob", string(gotOffer.payload))
}

func TestRejectCarriesReason(t *testing.T) {
	ref := ReferenceId{9}
	reject := NewReject(ref, "channel not in expected state")

	var buf bytes.Buffer
	_, err := WriteMessage(&buf, reject)
	require.NoError(t, err)

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	gotReject, ok := got.(*Reject)
	require.True(t, ok)
	require.Equal(t, "channel not in expected state", gotReject.Reason())
	require.Equal(t, ref, gotReject.Reference())
}

func TestReadMessageUnknownType(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0, 0, 0, 0})
	_, err := ReadMessage(&buf)
	require.Error(t, err)
}
