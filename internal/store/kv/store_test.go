package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key := []byte{0xab, 0xcd}
	_, ok, err := s.Get(ctx, KindContract, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(ctx, KindContract, key, []byte("blob")))
	v, ok, err := s.Get(ctx, KindContract, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("blob"), v)

	require.NoError(t, s.Delete(ctx, KindContract, key))
	_, ok, err = s.Get(ctx, KindContract, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlobstoreContractsAndChannels(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var tempID, chanID [32]byte
	tempID[0] = 1
	chanID[0] = 2

	require.NoError(t, s.PutContract(ctx, tempID, []byte("contract-blob")))
	require.NoError(t, s.PutChannel(ctx, chanID, []byte("channel-blob")))

	contracts, err := s.ListContracts(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("contract-blob"), contracts[tempID])

	channels, err := s.ListChannels(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("channel-blob"), channels[chanID])
}

func TestMonitorAndManagerBlobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	outpoint := []byte("txid:0")
	require.NoError(t, s.PutMonitor(ctx, outpoint, []byte("monitor-blob")))
	v, ok, err := s.Monitor(ctx, outpoint)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("monitor-blob"), v)

	require.NoError(t, s.PutManager(ctx, []byte("manager-blob")))
	mv, ok, err := s.Manager(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("manager-blob"), mv)
}
