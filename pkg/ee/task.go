package ee

// TaskState is the state of a batch task as the compute service reports it.
type TaskState string

const (
	Ready           TaskState = "READY"
	Running         TaskState = "RUNNING"
	Completed       TaskState = "COMPLETED"
	Failed          TaskState = "FAILED"
	Cancelled       TaskState = "CANCELLED"
	CancelRequested TaskState = "CANCEL_REQUESTED"
	UnknownState    TaskState = "UNKNOWN"
)

// Done means the service will not move the task any further.
func (s TaskState) Done() bool {
	switch s {
	case Completed, Failed, Cancelled:
		return true
	}
	return false
}

// TaskStatus is one entry of the service's task list.
type TaskStatus struct {
	TaskID       string    `json:"id"`
	State        TaskState `json:"state"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
