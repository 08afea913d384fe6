// Package payload normalizes inbound webhook bodies into a fixed schema.
// Upstream senders vary field casing, wrap payloads in envelopes, and encode
// several fields as either objects or scalars. All of that variation is
// resolved here, once, at intake; the rest of the pipeline reads only the
// normalized Forum struct.
package payload

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Forum is the normalized representation of one forum post payload.
type Forum struct {
	CorrelationID        string       `json:"correlationId" validate:"required"`
	PostedBy             string       `json:"postedBy"`
	ParentPostedBy       string       `json:"parentPostedBy"`
	Subject              string       `json:"forumPostSubject"`
	PostText             string       `json:"forumPostText"`
	ParentID             int64        `json:"parentId"`
	ParentPostQuery      string       `json:"parentPostQuery"`
	ParentPostResponse   string       `json:"parentPostResponse"`
	Type                 string       `json:"type"`
	Environment          string       `json:"environment"`
	IsImageBase64Encoded bool         `json:"isImageBase64Encoded"`
	Questions            []Question   `json:"questionData"`
	Passage              Passage      `json:"passageData"`
	Attachments          []Attachment `json:"base64EncodedImages"`

	// AttachmentTranscripts holds transcriptions of the standalone attachment
	// images, in attachment order. Populated by the image scanner.
	AttachmentTranscripts []string `json:"attachmentTranscripts,omitempty"`

	// Metadata carries sender-defined extras (hil_escalation among them).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Question is one entry of the question data block.
type Question struct {
	QuestionText            string         `json:"questionText"`
	QuestionStem            string         `json:"questionStem"`
	GeneralFeedback         string         `json:"generalFeedback"`
	QuestionImageTranscript string         `json:"questionImageTranscript"`
	FeedbackImageTranscript string         `json:"feedbackImageTranscript"`
	FeedbackVideoTranscript string         `json:"feedbackVideoTranscript"`
	AnswerChoices           []AnswerChoice `json:"answerChoicesMap"`
}

// AnswerChoice is one answer option with its feedback text.
type AnswerChoice struct {
	Content  string `json:"answerContent"`
	Feedback string `json:"answerFeedback"`
}

// Passage is a tagged union: senders deliver passage data either as an
// object with tab-list and text fields or as a single raw string.
type Passage struct {
	IsRaw   bool   `json:"isRaw,omitempty"`
	Raw     string `json:"raw,omitempty"`
	TabList string `json:"PassageTabListString,omitempty"`
	Text    string `json:"passageText,omitempty"`
}

// Empty reports whether the passage carries no content at all.
func (p Passage) Empty() bool {
	if p.IsRaw {
		return p.Raw == ""
	}
	return p.TabList == "" && p.Text == ""
}

// Attachment is a tagged union: a standalone base64 image delivered either as
// a bare string or as an object carrying the data and its extension.
type Attachment struct {
	Data      string `json:"encodedImage"`
	Extension string `json:"extension,omitempty"`
}

// ValidationError reports a payload that failed schema validation.
type ValidationError struct {
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

var validate = validator.New()

// Unwrap parses a raw webhook body and removes the delivery envelope if one
// is present. Some senders wrap the payload under a "body" key, either as a
// nested object or as a JSON-encoded string.
func Unwrap(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationError{Message: "request body is not a JSON object", Cause: err}
	}

	body, ok := m["body"]
	if !ok {
		return m, nil
	}
	switch b := body.(type) {
	case map[string]any:
		return b, nil
	case string:
		var inner map[string]any
		if err := json.Unmarshal([]byte(b), &inner); err != nil {
			return nil, &ValidationError{Message: "envelope body is not a JSON object", Cause: err}
		}
		return inner, nil
	default:
		return m, nil
	}
}

// CorrelationID extracts the correlation id from an unwrapped payload.
// Accepted under either of the sender's two field names.
func CorrelationID(m map[string]any) string {
	if v := stringAt(m, "correlationId"); v != "" {
		return v
	}
	return stringAt(m, "Forum_Corr_ID")
}

// HasFullData reports whether the payload carries the post content, as
// opposed to a bare correlation-id notification that requires a lookup.
func HasFullData(m map[string]any) bool {
	return stringAt(m, "forumPostText") != "" || stringAt(m, "ForumPostText") != ""
}

// Decode normalizes an unwrapped payload into a Forum and validates it.
func Decode(m map[string]any) (*Forum, error) {
	f := &Forum{
		CorrelationID:      CorrelationID(m),
		PostedBy:           stringAt(m, "postedBy", "PostedBy"),
		ParentPostedBy:     stringAt(m, "parentPostedBy"),
		Subject:            stringAt(m, "forumPostSubject", "ForumPostSubject"),
		PostText:           stringAt(m, "forumPostText", "ForumPostText"),
		ParentID:           intAt(m, "parentId", "id", "forumId"),
		ParentPostQuery:    stringAt(m, "parentPostQuery"),
		ParentPostResponse: stringAt(m, "parentPostResponse"),
		Type:               stringAt(m, "type"),
		Environment:        stringAt(m, "environment"),
	}

	if v, ok := m["isImageBase64Encoded"].(bool); ok {
		f.IsImageBase64Encoded = v
	}
	if md, ok := m["metadata"].(map[string]any); ok {
		f.Metadata = md
	}

	f.Questions = decodeQuestions(m["questionData"])
	f.Passage = decodePassage(m["passageData"])
	f.Attachments = decodeAttachments(m["base64EncodedImages"])

	if err := validate.Struct(f); err != nil {
		return nil, &ValidationError{Message: "payload failed validation", Cause: err}
	}
	return f, nil
}

// decodeQuestions accepts the question block as a single object or a list.
func decodeQuestions(v any) []Question {
	switch q := v.(type) {
	case map[string]any:
		return []Question{decodeQuestion(q)}
	case []any:
		out := make([]Question, 0, len(q))
		for _, item := range q {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, decodeQuestion(obj))
			}
		}
		return out
	}
	return nil
}

func decodeQuestion(m map[string]any) Question {
	q := Question{
		QuestionText:            stringAt(m, "questionText"),
		QuestionStem:            stringAt(m, "questionStem"),
		GeneralFeedback:         stringAt(m, "generalFeedback"),
		QuestionImageTranscript: stringAt(m, "questionImageTranscript"),
		FeedbackImageTranscript: stringAt(m, "feedbackImageTranscript"),
		FeedbackVideoTranscript: stringAt(m, "feedbackVideoTranscript"),
	}
	if choices, ok := m["answerChoicesMap"].([]any); ok {
		for _, item := range choices {
			if obj, ok := item.(map[string]any); ok {
				q.AnswerChoices = append(q.AnswerChoices, AnswerChoice{
					Content:  stringAt(obj, "answerContent"),
					Feedback: stringAt(obj, "answerFeedback"),
				})
			}
		}
	}
	return q
}

// decodePassage accepts the passage block as an object or a raw string.
func decodePassage(v any) Passage {
	switch p := v.(type) {
	case map[string]any:
		return Passage{
			TabList: stringAt(p, "PassageTabListString"),
			Text:    stringAt(p, "passageText"),
		}
	case string:
		return Passage{IsRaw: true, Raw: p}
	}
	return Passage{}
}

// decodeAttachments accepts entries as bare base64 strings or as objects
// carrying the data and extension.
func decodeAttachments(v any) []Attachment {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Attachment, 0, len(list))
	for _, item := range list {
		switch a := item.(type) {
		case string:
			if a != "" {
				out = append(out, Attachment{Data: a})
			}
		case map[string]any:
			data := stringAt(a, "encodedImage", "data")
			if data != "" {
				out = append(out, Attachment{
					Data:      data,
					Extension: stringAt(a, "extension"),
				})
			}
		}
	}
	return out
}

// stringAt returns the first non-empty string value among the given keys.
func stringAt(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// intAt returns the first parseable integer among the given keys. JSON
// numbers arrive as float64; some senders deliver ids as strings.
func intAt(m map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return int64(v)
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
