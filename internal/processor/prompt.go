package processor

import (
	"fmt"
	"strings"

	"github.com/jonathan/forum-responder/internal/payload"
)

// buildUserPrompt assembles the user prompt shared by every classification
// and responder stage. Sections are XML-tagged so the system prompts can
// reference them by name; empty sections are omitted.
func buildUserPrompt(f *payload.Forum) string {
	var sb strings.Builder

	if q := questionSection(f); q != "" {
		writeSection(&sb, "SAT_Question", q)
	}
	if s := solutionSection(f); s != "" {
		writeSection(&sb, "SAT_Solution", s)
	}
	if p := passageSection(f); p != "" {
		writeSection(&sb, "Passage", p)
	}

	doubt := f.PostText
	if f.Subject != "" {
		doubt = "Subject: " + f.Subject + "\n\n" + doubt
	}
	writeSection(&sb, "Student_Doubt", doubt)

	if len(f.AttachmentTranscripts) > 0 {
		var imgs strings.Builder
		for i, t := range f.AttachmentTranscripts {
			fmt.Fprintf(&imgs, "Image %d: %s\n", i+1, t)
		}
		writeSection(&sb, "Attached_Images", strings.TrimRight(imgs.String(), "\n"))
	}

	if f.ParentPostQuery != "" || f.ParentPostResponse != "" {
		var prev strings.Builder
		if f.ParentPostQuery != "" {
			prev.WriteString("Student asked: " + f.ParentPostQuery)
		}
		if f.ParentPostResponse != "" {
			if prev.Len() > 0 {
				prev.WriteString("\n")
			}
			prev.WriteString("Tutor replied: " + f.ParentPostResponse)
		}
		writeSection(&sb, "previous_exchange", prev.String())
	}

	return strings.TrimRight(sb.String(), "\n")
}

func questionSection(f *payload.Forum) string {
	var sb strings.Builder
	for i, q := range f.Questions {
		if len(f.Questions) > 1 {
			fmt.Fprintf(&sb, "Question %d:\n", i+1)
		}
		if q.QuestionStem != "" {
			sb.WriteString(q.QuestionStem + "\n")
		}
		if q.QuestionText != "" {
			sb.WriteString(q.QuestionText + "\n")
		}
		if q.QuestionImageTranscript != "" {
			sb.WriteString(q.QuestionImageTranscript + "\n")
		}
		for j, c := range q.AnswerChoices {
			if c.Content != "" {
				fmt.Fprintf(&sb, "Choice %c: %s\n", 'A'+j, c.Content)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func solutionSection(f *payload.Forum) string {
	var sb strings.Builder
	for _, q := range f.Questions {
		if q.GeneralFeedback != "" {
			sb.WriteString(q.GeneralFeedback + "\n")
		}
		if q.FeedbackImageTranscript != "" {
			sb.WriteString(q.FeedbackImageTranscript + "\n")
		}
		if q.FeedbackVideoTranscript != "" {
			sb.WriteString(q.FeedbackVideoTranscript + "\n")
		}
		for j, c := range q.AnswerChoices {
			if c.Feedback != "" {
				fmt.Fprintf(&sb, "Feedback for choice %c: %s\n", 'A'+j, c.Feedback)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func passageSection(f *payload.Forum) string {
	if f.Passage.IsRaw {
		return f.Passage.Raw
	}
	var parts []string
	if f.Passage.Text != "" {
		parts = append(parts, f.Passage.Text)
	}
	if f.Passage.TabList != "" {
		parts = append(parts, f.Passage.TabList)
	}
	return strings.Join(parts, "\n")
}

func writeSection(sb *strings.Builder, tag, content string) {
	fmt.Fprintf(sb, "<%s>\n%s\n</%s>\n\n", tag, content, tag)
}
