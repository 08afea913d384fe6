// Package processor runs one forum job through the classification state
// machine: URL guard, image scan, triage, deep classification, a specialized
// responder tool, response extraction, and HTML formatting, ending in a
// terminal status and a posting decision.
package processor

import "time"

// Status is a job's pipeline state. Every job ends in one of the four
// terminal values.
type Status string

const (
	StatusPending      Status = "pending"
	StatusCompleted    Status = "completed"
	StatusHILException Status = "hil_exception"
	StatusURLDetected  Status = "url_detected"
	StatusError        Status = "error"
)

// Triage and deep-classification labels.
const (
	TriageOnTopic = "SM_Doubt"

	ClassGenuineDoubt = "Genuine_Doubt"
	ClassCorrections  = "Pointing_Out_Corrections"
	ClassVariation    = "Variation_of_Question"
	ClassAlternate    = "Alternate_Approach"
)

// Pipeline stage names recorded on tool outputs. Responder stages use the
// deep-classification label itself.
const (
	StageTriage         = "triage"
	StageDeepClassifier = "deep_classifier"
	StageFormatter      = "response_formatter"
)

// ToolOutput records one LLM invocation, in pipeline order.
type ToolOutput struct {
	ToolName       string         `json:"tool_name"`
	Sequence       int            `json:"sequence"`
	Output         map[string]any `json:"output,omitempty"`
	RawText        string         `json:"raw_text,omitempty"`
	Model          string         `json:"model,omitempty"`
	InputTokens    int32          `json:"input_tokens"`
	OutputTokens   int32          `json:"output_tokens"`
	Cost           float64        `json:"cost"`
	ExecutionTime  time.Duration  `json:"execution_time"`
	Success        bool           `json:"success"`
	Error          string         `json:"error,omitempty"`
	ExceptionFlag  bool           `json:"exception_flag"`
	Classification string         `json:"classification,omitempty"`
}

// Result is the accumulator built as a job moves through the state machine.
// It is owned by a single worker and never shared.
type Result struct {
	CorrelationID     string
	Status            Status
	Classification    string
	HILFlag           bool
	FinalResponseText string
	FinalResponseHTML string
	URLCheck          bool
	URLsFound         []string
	ImagesTranscribed int
	ImageFields       []string
	ValidationVerdict string
	ToolOutputs       []*ToolOutput
	Error             string
	StartedAt         time.Time
	Duration          time.Duration
}

func (r *Result) fail(err error) *Result {
	r.Status = StatusError
	r.Error = err.Error()
	return r
}

// TotalCost sums the dollar cost of every LLM invocation for the job.
func (r *Result) TotalCost() float64 {
	var total float64
	for _, out := range r.ToolOutputs {
		total += out.Cost
	}
	return total
}
