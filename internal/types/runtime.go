package types

// AppRuntimeState is a read-only snapshot of installable-app status.
// It is mutated only by the lifecycle manager in response to platform events.
type AppRuntimeState struct {
	IsOnline        bool `json:"is_online"`
	IsInstalled     bool `json:"is_installed"`
	CanInstall      bool `json:"can_install"`
	UpdateAvailable bool `json:"update_available"`
}

// WorkerState represents background-script registration states
type WorkerState string

const (
	WorkerInstalling WorkerState = "installing"
	WorkerWaiting    WorkerState = "waiting"
	WorkerActive     WorkerState = "active"
)

// WorkerStates describes which workers a registration currently holds.
// A non-empty waiting worker implies an update is available.
type WorkerStates struct {
	Installing bool `json:"installing"`
	Waiting    bool `json:"waiting"`
	Active     bool `json:"active"`
}

// PromptOutcome is the user's response to an install prompt
type PromptOutcome string

const (
	OutcomeAccepted  PromptOutcome = "accepted"
	OutcomeDismissed PromptOutcome = "dismissed"
)
