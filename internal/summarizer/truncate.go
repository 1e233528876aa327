package summarizer

// Truncate enforces MaxSummaryBytes. Text longer than the limit keeps exactly
// its first MaxSummaryBytes bytes, which may split a multi-byte character,
// followed by TruncationNotice.
func Truncate(text string) (string, bool) {
	if len(text) <= MaxSummaryBytes {
		return text, false
	}
	return text[:MaxSummaryBytes] + TruncationNotice, true
}
