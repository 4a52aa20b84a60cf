package settings

import (
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"

	"github.com/bsv-blockchain/go-headers-client/chaincfg"
)

// Settings holds the full configuration of the client, read once at startup
// from gocore config (settings.conf and environment).
type Settings struct {
	ClientName     string
	DataFolder     string
	ChainCfgParams *chaincfg.Params

	// InvalidBlocks are extra hashes unioned with the chain's built-in list.
	InvalidBlocks []*chainhash.Hash

	P2P P2PSettings
}

// P2PSettings groups the networking and peer pool configuration.
type P2PSettings struct {
	// TargetConnections is the number of verified sessions the pool keeps.
	TargetConnections int

	// NumWorkers is the number of connection worker loops, normally twice
	// the connection target.
	NumWorkers int

	// SeedNodes are extra bootstrap addresses merged with the chain's
	// built-in seeds.
	SeedNodes []string

	// BootstrapURL is an optional HTTPS endpoint returning a JSON peer list.
	BootstrapURL string

	ConnectTimeout         time.Duration
	RequestTimeout         time.Duration
	GetAddrTimeout         time.Duration
	RecentDisconnectWindow time.Duration

	// OutOfSyncThreshold is how many blocks behind the longest chain a peer
	// may be before it is reported out of sync.
	OutOfSyncThreshold uint32

	// MaxKnownAddresses caps the peer metrics database; the oldest seen
	// addresses beyond the cap are evicted by the health monitor.
	MaxKnownAddresses int

	// MinKnownAddresses is the database size below which the pool
	// bootstraps fresh addresses.
	MinKnownAddresses int

	HealthCheckInterval time.Duration
	LivenessInterval    time.Duration
}

func NewSettings() *Settings {
	params, err := chaincfg.GetChainParams(getString("network", "mainnet"))
	if err != nil {
		panic(err)
	}

	var invalidBlocks []*chainhash.Hash

	for _, s := range getMultiString("invalid_blocks") {
		if s == "" {
			continue
		}

		hash, err := chainhash.NewHashFromStr(s)
		if err != nil {
			panic("invalid_blocks contains a bad hash: " + s)
		}

		invalidBlocks = append(invalidBlocks, hash)
	}

	targetConnections := getInt("p2p_targetConnections", 8)

	return &Settings{
		ClientName:     getString("clientName", "go-headers-client"),
		DataFolder:     getString("dataFolder", "data"),
		ChainCfgParams: params,
		InvalidBlocks:  invalidBlocks,
		P2P: P2PSettings{
			TargetConnections:      targetConnections,
			NumWorkers:             getInt("p2p_numWorkers", 2*targetConnections),
			SeedNodes:              getMultiString("p2p_seedNodes"),
			BootstrapURL:           getString("p2p_bootstrapURL", ""),
			ConnectTimeout:         getDuration("p2p_connectTimeout", "8s"),
			RequestTimeout:         getDuration("p2p_requestTimeout", "8s"),
			GetAddrTimeout:         getDuration("p2p_getAddrTimeout", "120s"),
			RecentDisconnectWindow: getDuration("p2p_recentDisconnectWindow", "1s"),
			OutOfSyncThreshold:     uint32(getInt("p2p_outOfSyncThreshold", 100)),
			MaxKnownAddresses:      getInt("p2p_maxKnownAddresses", 4000),
			MinKnownAddresses:      getInt("p2p_minKnownAddresses", 16),
			HealthCheckInterval:    getDuration("p2p_healthCheckInterval", "30m"),
			LivenessInterval:       getDuration("p2p_livenessInterval", "20s"),
		},
	}
}
