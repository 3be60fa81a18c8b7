package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSequenceKey(t *testing.T) {
	require.Equal(t, "seq:CMP:261016", BuildSequenceKey("CMP", "261016"))
	require.Equal(t, "escrow:events", EventChannel())
}
