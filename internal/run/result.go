package run

// Result is the lifecycle state of a single job instance within a run.
type Result int

const (
	Pending Result = iota
	Running
	Succeeded
	Failed
	Skipped
	Cancelled
)

// Terminal reports whether the result is final.
func (r Result) Terminal() bool {
	switch r {
	case Succeeded, Failed, Skipped, Cancelled:
		return true
	}
	return false
}

func (r Result) String() string {
	switch r {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// MarshalText lets results render as their lowercase names in JSON payloads.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
