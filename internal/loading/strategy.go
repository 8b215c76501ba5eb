package loading

import (
	"time"

	"github.com/innospot/runtime/internal/types"
)

// DefaultNetwork is assumed when the platform exposes no connection info
func DefaultNetwork() types.NetworkProfile {
	return types.NetworkProfile{
		EffectiveType: types.Net4G,
		Downlink:      10,
		RTT:           50,
		SaveData:      false,
	}
}

// DefaultDevice is assumed when device signals are unavailable
func DefaultDevice() types.DeviceProfile {
	return types.DeviceProfile{
		Memory:              4,
		HardwareConcurrency: 4,
	}
}

// DeriveStrategy computes the loading strategy for the observed signals.
// A base strategy is selected from the effective network type, then the
// downgrade rules apply in a fixed order; the order matters because batch
// halving floors at 1 and quality reductions floor at their own minimums.
func DeriveStrategy(network types.NetworkProfile, device types.DeviceProfile) types.LoadingStrategy {
	var s types.LoadingStrategy

	switch network.EffectiveType {
	case types.NetSlow2G, types.Net2G:
		s = types.LoadingStrategy{
			BatchSize:           3,
			DelayBetweenBatches: 500,
			PrefetchNext:        false,
			Quality:             30,
			EnableCaching:       true,
		}
	case types.Net3G:
		s = types.LoadingStrategy{
			BatchSize:           5,
			DelayBetweenBatches: 200,
			PrefetchNext:        false,
			Quality:             50,
			EnableCaching:       true,
		}
	default: // 4g and unknown
		s = types.LoadingStrategy{
			BatchSize:           15,
			DelayBetweenBatches: 50,
			PrefetchNext:        true,
			Quality:             75,
			EnableCaching:       true,
		}
	}

	// Rule 1: data-saver mode
	if network.SaveData {
		s.BatchSize = max(1, s.BatchSize/2)
		s.Quality = max(20, s.Quality-25)
		s.PrefetchNext = false
	}

	// Rule 2: low-memory device
	if device.Memory > 0 && device.Memory < 2 {
		s.BatchSize = max(1, s.BatchSize/2)
		s.EnableCaching = false
	}

	// Rule 3: low-power mode
	if device.IsLowPower {
		s.DelayBetweenBatches *= 2
		s.PrefetchNext = false
	}

	// Rule 4: mobile device
	if device.IsMobile {
		s.Quality = max(30, s.Quality-10)
	}

	return s
}

// estimateTotal maps the effective network type to an expected load
// duration for the progress simulation
func estimateTotal(effectiveType types.EffectiveType) time.Duration {
	switch effectiveType {
	case types.NetSlow2G:
		return 5000 * time.Millisecond
	case types.Net2G:
		return 3000 * time.Millisecond
	case types.Net3G:
		return 2000 * time.Millisecond
	default:
		return 1000 * time.Millisecond
	}
}

// ShouldOptimize reports whether constrained-resource optimizations apply
func ShouldOptimize(network types.NetworkProfile, device types.DeviceProfile) bool {
	return network.EffectiveType == types.NetSlow2G ||
		network.EffectiveType == types.Net2G ||
		network.SaveData ||
		(device.Memory > 0 && device.Memory < 2) ||
		device.IsLowPower
}
