package broker

// Tier is the escalation path that produced the current handle
type Tier int

const (
	// TierNone means nothing is resolved yet
	TierNone Tier = iota
	// TierInProcessElevated runs the helper inside this process (we are root)
	TierInProcessElevated
	// TierCachedHandle is a helper that was already running when we looked
	TierCachedHandle
	// TierAlternateBroker binds over SSH with a key granted beforehand
	TierAlternateBroker
	// TierRootSpawned started the helper through the elevation command
	TierRootSpawned
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierInProcessElevated:
		return "in-process"
	case TierCachedHandle:
		return "running helper"
	case TierAlternateBroker:
		return "ssh"
	case TierRootSpawned:
		return "root spawned"
	default:
		return "unknown"
	}
}

// Elevation is the last known outcome of asking for root
type Elevation int

const (
	ElevationUnknown Elevation = iota
	ElevationGranted
	ElevationDenied
)

func (e Elevation) String() string {
	switch e {
	case ElevationGranted:
		return "granted"
	case ElevationDenied:
		return "denied"
	default:
		return "unknown"
	}
}
