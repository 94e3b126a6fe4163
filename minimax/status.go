package minimax

// Status is the remote task state, decoded once at the client boundary.
type Status string

const (
	StatusPreparing  Status = "Preparing"
	StatusQueueing   Status = "Queueing"
	StatusProcessing Status = "Processing"
	StatusSuccess    Status = "Success"
	StatusFail       Status = "Fail"
	// StatusUnknown stands in for anything the service reports that is not listed above.
	StatusUnknown Status = "Unknown"
)

// ParseStatus maps a raw status string onto the closed set, falling back to StatusUnknown.
func ParseStatus(raw string) Status {
	switch s := Status(raw); s {
	case StatusPreparing, StatusQueueing, StatusProcessing, StatusSuccess, StatusFail:
		return s
	default:
		return StatusUnknown
	}
}

// InProgress reports whether the task is still being worked on remotely.
func (s Status) InProgress() bool {
	return s == StatusPreparing || s == StatusQueueing || s == StatusProcessing
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusFail }

func (s Status) String() string { return string(s) }
