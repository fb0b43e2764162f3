package persister

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/get10101/10101-sub001/internal/backup"
	"github.com/get10101/10101-sub001/internal/store/kv"
)

type spyBacker struct {
	calls []string
}

func (s *spyBacker) Backup(_ context.Context, kind backup.Kind, subkey string, _ []byte) {
	s.calls = append(s.calls, backup.Key(kind, subkey))
}

func TestPersisterPushesOnWrite(t *testing.T) {
	store, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	spy := &spyBacker{}
	p := New(store, spy)

	ctx := context.Background()
	var tempID [32]byte
	tempID[0] = 0xaa

	require.NoError(t, p.PutContract(ctx, tempID, []byte("blob")))
	require.NoError(t, p.PutManager(ctx, []byte("manager-blob")))

	require.Len(t, spy.calls, 2)
	require.Equal(t, "dlc/00/aa00000000000000000000000000000000000000000000000000000000000000", spy.calls[0])
	require.Equal(t, "ln/manager", spy.calls[1])

	contracts, err := p.ListContracts(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("blob"), contracts[tempID])
}

func TestPersisterNilBackerIsNoop(t *testing.T) {
	store, err := kv.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	p := New(store, nil)
	var channelID [32]byte
	require.NoError(t, p.PutChannel(context.Background(), channelID, []byte("blob")))
}
