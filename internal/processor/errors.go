package processor

import "fmt"

// UpstreamError marks an external call that exhausted its retry budget. It
// unconditionally moves the job to the error status.
type UpstreamError struct {
	Stage   string
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s stage failed: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// RoutingError marks a classification value with no mapped responder tool.
type RoutingError struct {
	Classification string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no responder tool for classification %q", e.Classification)
}
