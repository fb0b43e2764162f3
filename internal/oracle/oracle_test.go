package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventID(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "btcusd1704067200", EventID(ts))
}
