package payload

import "fmt"

// Field is one scannable text location in a Forum, addressed by a stable
// indexed path such as "questionData[0].answerChoicesMap[1].answerFeedback".
// Get and Set operate on the underlying Forum in place.
type Field struct {
	Path string
	Get  func() string
	Set  func(string)
}

// ScannableFields enumerates every text field that may carry embedded image
// content, in a fixed order: top-level post fields, then question data with
// indexed answer choices, then passage data.
func (f *Forum) ScannableFields() []Field {
	fields := []Field{
		strField("forumPostText", &f.PostText),
		strField("forumPostSubject", &f.Subject),
		strField("parentPostQuery", &f.ParentPostQuery),
		strField("parentPostResponse", &f.ParentPostResponse),
	}

	for i := range f.Questions {
		q := &f.Questions[i]
		prefix := fmt.Sprintf("questionData[%d]", i)
		fields = append(fields,
			strField(prefix+".questionText", &q.QuestionText),
			strField(prefix+".questionStem", &q.QuestionStem),
			strField(prefix+".generalFeedback", &q.GeneralFeedback),
			strField(prefix+".questionImageTranscript", &q.QuestionImageTranscript),
			strField(prefix+".feedbackImageTranscript", &q.FeedbackImageTranscript),
			strField(prefix+".feedbackVideoTranscript", &q.FeedbackVideoTranscript),
		)
		for j := range q.AnswerChoices {
			c := &q.AnswerChoices[j]
			cp := fmt.Sprintf("%s.answerChoicesMap[%d]", prefix, j)
			fields = append(fields,
				strField(cp+".answerContent", &c.Content),
				strField(cp+".answerFeedback", &c.Feedback),
			)
		}
	}

	if f.Passage.IsRaw {
		fields = append(fields, strField("passageData", &f.Passage.Raw))
	} else {
		fields = append(fields,
			strField("passageData.PassageTabListString", &f.Passage.TabList),
			strField("passageData.passageText", &f.Passage.Text),
		)
	}

	return fields
}

func strField(path string, p *string) Field {
	return Field{
		Path: path,
		Get:  func() string { return *p },
		Set:  func(s string) { *p = s },
	}
}

// HILEscalated reports whether the sender flagged this payload for human
// review via metadata. Accepts boolean true or the string "true".
func (f *Forum) HILEscalated() bool {
	if f.Metadata == nil {
		return false
	}
	switch v := f.Metadata["hil_escalation"].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
