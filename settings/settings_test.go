package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettingsDefaults(t *testing.T) {
	s := NewSettings()

	require.NotNil(t, s.ChainCfgParams)
	assert.Equal(t, "mainnet", s.ChainCfgParams.Name)

	assert.Equal(t, 8, s.P2P.TargetConnections)
	assert.Equal(t, 16, s.P2P.NumWorkers)
	assert.Equal(t, 8*time.Second, s.P2P.RequestTimeout)
	assert.Equal(t, 120*time.Second, s.P2P.GetAddrTimeout)
	assert.Equal(t, time.Second, s.P2P.RecentDisconnectWindow)
	assert.Equal(t, uint32(100), s.P2P.OutOfSyncThreshold)
	assert.Equal(t, 4000, s.P2P.MaxKnownAddresses)
	assert.Equal(t, 30*time.Minute, s.P2P.HealthCheckInterval)
}
