package types

// EffectiveType is a coarse connection-quality classification
type EffectiveType string

const (
	NetSlow2G EffectiveType = "slow-2g"
	Net2G     EffectiveType = "2g"
	Net3G     EffectiveType = "3g"
	Net4G     EffectiveType = "4g"
)

// NetworkProfile holds sampled network signals. Sampled, never persisted;
// absent on platforms without connection information.
type NetworkProfile struct {
	EffectiveType EffectiveType `json:"effective_type"`
	Downlink      float64       `json:"downlink"` // Mbps
	RTT           int           `json:"rtt"`      // milliseconds
	SaveData      bool          `json:"save_data"`
}

// DeviceProfile holds device capability signals, sampled once at startup.
type DeviceProfile struct {
	Memory              float64 `json:"memory"` // GB
	HardwareConcurrency int     `json:"hardware_concurrency"`
	IsMobile            bool    `json:"is_mobile"`
	IsLowPower          bool    `json:"is_low_power"`
}

// LoadingStrategy is a pure function of NetworkProfile and DeviceProfile.
// Invariants: BatchSize >= 1, Quality in [20, 100].
type LoadingStrategy struct {
	BatchSize           int  `json:"batch_size"`
	DelayBetweenBatches int  `json:"delay_between_batches"` // milliseconds
	PrefetchNext        bool `json:"prefetch_next"`
	Quality             int  `json:"quality"` // percent
	EnableCaching       bool `json:"enable_caching"`
}

// LoadPhase represents loading-simulation states
type LoadPhase string

const (
	LoadIdle     LoadPhase = "idle"
	LoadRunning  LoadPhase = "running"
	LoadComplete LoadPhase = "complete"
	LoadFailed   LoadPhase = "failed"
)

// LoadState is a snapshot of the current loading simulation
type LoadState struct {
	Phase    LoadPhase `json:"phase"`
	Progress float64   `json:"progress"` // 0-100
	Error    string    `json:"error,omitempty"`
}
