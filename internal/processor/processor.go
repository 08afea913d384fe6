package processor

import (
	"context"
	"log"
	"time"

	"github.com/jonathan/forum-responder/internal/images"
	"github.com/jonathan/forum-responder/internal/llm"
	"github.com/jonathan/forum-responder/internal/payload"
	"github.com/jonathan/forum-responder/internal/prompts"
	"github.com/jonathan/forum-responder/internal/schemas"
	"github.com/jonathan/forum-responder/internal/urlguard"
)

// Processor runs the classification state machine. It is safe for use by
// multiple workers concurrently; per-job state lives in the Result and the
// per-job image scanner.
type Processor struct {
	llm         llm.Client
	transcriber images.Transcriber
}

// New builds a Processor over an LLM client and an image transcriber.
func New(client llm.Client, transcriber images.Transcriber) *Processor {
	return &Processor{llm: client, transcriber: transcriber}
}

// Process takes a normalized payload to a terminal status. It never returns
// an error: every failure is folded into the Result so the worker always has
// a terminal state to persist.
func (p *Processor) Process(ctx context.Context, f *payload.Forum) *Result {
	started := time.Now()
	res := &Result{
		CorrelationID: f.CorrelationID,
		Status:        StatusPending,
		StartedAt:     started,
	}
	defer func() { res.Duration = time.Since(started) }()

	// Stage 1: URL guard. Links mean the post needs human eyes before any
	// automated reply.
	res.URLCheck = true
	if found, urls := urlguard.Check(f); found {
		res.URLsFound = urls
		res.Status = StatusURLDetected
		log.Printf("[%s] url detected, skipping pipeline: %v", f.CorrelationID, urls)
		return res
	}

	// Stage 2: image scan. Transcription failures are tolerated; only
	// cancellation stops the job here.
	scanner := images.NewScanner(p.transcriber)
	stats, err := scanner.Scan(ctx, f)
	if err != nil {
		return res.fail(&UpstreamError{Stage: "image_scan", Message: "scan interrupted", Cause: err})
	}
	res.ImagesTranscribed = stats.TotalImages
	res.ImageFields = stats.FieldsProcessed
	if stats.TotalImages > 0 {
		log.Printf("[%s] transcribed %d images in %v", f.CorrelationID, stats.TotalImages, stats.FieldsProcessed)
	}

	userPrompt := buildUserPrompt(f)

	// Stage 3: triage. Anything but the on-topic category goes to human
	// review.
	triage, err := p.invoke(ctx, res, StageTriage, prompts.KeyTriage, llm.TierLite, userPrompt, schemas.ValidateTriage)
	if err != nil {
		return res.fail(err)
	}
	if triage.Classification != TriageOnTopic {
		res.Classification = triage.Classification
		res.Status = StatusHILException
		log.Printf("[%s] triage %q, escalating to human review", f.CorrelationID, triage.Classification)
		return res
	}

	// Stage 4: deep classification selects the responder tool.
	deep, err := p.invoke(ctx, res, StageDeepClassifier, prompts.KeyDeepClassifier, llm.TierStandard, userPrompt, schemas.ValidateDeepClassification)
	if err != nil {
		return res.fail(err)
	}
	res.Classification = deep.Classification

	promptKey, err := prompts.ForTool(deep.Classification)
	if err != nil {
		return res.fail(&RoutingError{Classification: deep.Classification})
	}

	// Stage 5: the specialized responder.
	responder, err := p.invoke(ctx, res, deep.Classification, promptKey, llm.TierAdvanced, userPrompt, nil)
	if err != nil {
		return res.fail(err)
	}

	if res.Classification == ClassCorrections {
		res.ValidationVerdict = validationVerdict(responder.Output)
	}

	// Stage 6: escalation flags override everything downstream.
	responder.ExceptionFlag = exceptionFlagSet(responder.Output)
	if responder.ExceptionFlag || f.HILEscalated() {
		res.HILFlag = true
		res.Status = StatusHILException
		log.Printf("[%s] escalation flag set, routing to human review", f.CorrelationID)
		return res
	}

	// Stage 7: response extraction.
	ext, err := extractResponse(responder.Output)
	if err != nil {
		return res.fail(&UpstreamError{Stage: "response_extraction", Message: "cannot extract response", Cause: err})
	}
	res.FinalResponseText = ext.Text
	res.FinalResponseHTML = ext.HTML

	// Stage 8: HTML formatting, skipped when the responder already returned
	// HTML.
	if res.FinalResponseHTML == "" {
		formatted, err := p.invoke(ctx, res, StageFormatter, prompts.KeyFormatter, llm.TierLite, ext.Text, nil)
		if err != nil {
			return res.fail(err)
		}
		html, ok := formatted.Output["response_html"].(string)
		if !ok || html == "" {
			return res.fail(&UpstreamError{Stage: StageFormatter, Message: "formatter returned no response_html"})
		}
		res.FinalResponseHTML = html
	}

	res.Status = StatusCompleted
	return res
}

// invoke runs one LLM stage: load the system prompt, generate JSON, parse,
// optionally schema-validate, and append a ToolOutput to the result. The
// ToolOutput is recorded even on failure.
func (p *Processor) invoke(ctx context.Context, res *Result, toolName, promptKey string, tier llm.ModelTier, userPrompt string, validateOutput func(string) error) (*ToolOutput, error) {
	out := &ToolOutput{
		ToolName: toolName,
		Sequence: len(res.ToolOutputs) + 1,
	}
	res.ToolOutputs = append(res.ToolOutputs, out)

	system, err := prompts.Forum(promptKey)
	if err != nil {
		out.Error = err.Error()
		return nil, &UpstreamError{Stage: toolName, Message: "prompt unavailable", Cause: err}
	}

	started := time.Now()
	result, err := p.llm.GenerateJSON(ctx, system, userPrompt, tier)
	out.ExecutionTime = time.Since(started)
	if err != nil {
		out.Error = err.Error()
		return nil, &UpstreamError{Stage: toolName, Message: "LLM call failed", Cause: err}
	}

	out.RawText = result.Text
	out.Model = result.Model
	out.InputTokens = result.InputTokens
	out.OutputTokens = result.OutputTokens
	out.Cost = result.Cost.Total

	parsed, err := llm.ParseJSONResponse(result.Text)
	if err != nil {
		out.Error = err.Error()
		return nil, &UpstreamError{Stage: toolName, Message: "response is not JSON", Cause: err}
	}
	out.Output = parsed

	if validateOutput != nil {
		if err := validateOutput(result.Text); err != nil {
			out.Error = err.Error()
			return nil, &UpstreamError{Stage: toolName, Message: "output failed schema validation", Cause: err}
		}
	}

	if c, ok := parsed["classification"].(string); ok {
		out.Classification = c
	}
	out.Success = true
	return out, nil
}
