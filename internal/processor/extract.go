package processor

import (
	"fmt"
	"strings"
)

// extracted is the decoded form of a responder output, one branch per known
// shape.
type extracted struct {
	// Shape names the branch that matched, for logging.
	Shape string
	// Text is the plain response, empty when the responder returned HTML.
	Text string
	// HTML is a ready-to-post response; when set, the formatting stage is
	// skipped.
	HTML string
}

// Named parts of a structured response content block, joined in this order.
var contentParts = []string{
	"greeting",
	"main_response",
	"worked_solution",
	"comparison_to_official",
	"closing",
}

// extractResponse decodes the responder output into one of the known shapes,
// in priority order: response.content as a string, response.content as named
// parts, a direct HTML field, a plain response field. Unrecognized shapes
// are an explicit error branch, not a silent passthrough.
func extractResponse(output map[string]any) (*extracted, error) {
	if response, ok := output["response"].(map[string]any); ok {
		switch content := response["content"].(type) {
		case string:
			if content != "" {
				return &extracted{Shape: "content_string", Text: content}, nil
			}
		case map[string]any:
			if joined := joinParts(content); joined != "" {
				return &extracted{Shape: "content_parts", Text: joined}, nil
			}
		}
	}

	if html, ok := output["response_html"].(string); ok && html != "" {
		return &extracted{Shape: "html", HTML: html}, nil
	}

	for _, key := range []string{"response", "Response"} {
		if text, ok := output[key].(string); ok && text != "" {
			return &extracted{Shape: "plain", Text: text}, nil
		}
	}

	return nil, fmt.Errorf("unrecognized responder output shape (keys: %s)", keyList(output))
}

func joinParts(content map[string]any) string {
	var parts []string
	for _, name := range contentParts {
		if v, ok := content[name].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n\n")
}

func keyList(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return strings.Join(keys, ", ")
}

// exceptionFlagSet reports whether a responder output requests human
// escalation, under any of the flag spellings senders and prompts have used.
func exceptionFlagSet(output map[string]any) bool {
	if v, ok := output["Exception_Flag"].(string); ok && strings.EqualFold(v, "Yes") {
		return true
	}
	switch v := output["exception_flag"].(type) {
	case bool:
		if v {
			return true
		}
	case string:
		if strings.EqualFold(v, "Yes") || strings.EqualFold(v, "true") {
			return true
		}
	}
	if md, ok := output["metadata"].(map[string]any); ok {
		switch v := md["hil_escalation"].(type) {
		case bool:
			if v {
				return true
			}
		case string:
			if v == "true" {
				return true
			}
		}
	}
	return false
}

// validationVerdict pulls the embedded verdict out of a corrections-tool
// output. Returns "" when absent.
func validationVerdict(output map[string]any) string {
	vr, ok := output["validation_result"].(map[string]any)
	if !ok {
		return ""
	}
	verdict, _ := vr["classification"].(string)
	return strings.ToUpper(strings.TrimSpace(verdict))
}
