package scheduler

// Normal lifecycle: pending -> ready -> in_progress -> completed|failed.
// ready -> failed covers dispatch rejections (unknown agent, open circuit).
var validTransitions = map[TaskStatus]map[TaskStatus]bool{
	StatusPending: {
		StatusReady:   true,
		StatusBlocked: true,
	},
	StatusReady: {
		StatusInProgress: true,
		StatusFailed:     true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusFailed: {
		StatusPending: true, // retry
	},
	StatusBlocked: {
		StatusPending: true, // ancestor retried, skipped or completed
	},
}

// States from which a task may be skipped into completed.
var skippableStatuses = map[TaskStatus]bool{
	StatusPending: true,
	StatusReady:   true,
	StatusBlocked: true,
	StatusFailed:  true,
}

// ValidateTransition returns an *InvalidTransitionError if from -> to is not
// part of the task lifecycle.
func ValidateTransition(taskID string, from, to TaskStatus) error {
	if validTransitions[from][to] {
		return nil
	}
	return &InvalidTransitionError{TaskID: taskID, From: from, To: to}
}

// CanSkip reports whether a task in the given status may be skipped.
func CanSkip(status TaskStatus) bool {
	return skippableStatuses[status]
}

// IsActive reports whether a task in this status still holds its phase open.
func IsActive(status TaskStatus) bool {
	switch status {
	case StatusPending, StatusReady, StatusInProgress:
		return true
	}
	return false
}
