package processor

// Forum-post outcomes recorded in SaveStatus and the ledger.
const (
	PostStatusPosted            = "posted"
	PostStatusFailed            = "failed"
	PostStatusSkippedHIL        = "skipped_hil"
	PostStatusSkippedValidation = "skipped_validation"
	PostStatusSkipped           = "skipped"
)

// ShouldPost is the posting decision: a pure function of terminal status,
// deep classification, and the corrections validation verdict. When post is
// false, skipReason is the forum-post status to record.
func ShouldPost(status Status, classification, validationVerdict string) (post bool, skipReason string) {
	switch status {
	case StatusCompleted:
		if classification == ClassCorrections && validationVerdict != "INVALID" {
			// Only a confirmed error in the official content warrants an
			// automatic correction reply.
			return false, PostStatusSkippedValidation
		}
		return true, ""
	case StatusHILException:
		return false, PostStatusSkippedHIL
	default:
		// error, url_detected, and anything non-terminal never post.
		return false, PostStatusSkipped
	}
}
