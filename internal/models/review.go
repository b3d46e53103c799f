package models

// Reviewer verdicts accepted by the feedback endpoint.
const (
	VerdictInnocent = "innocent"
	VerdictGuilty   = "guilty"
	VerdictPass     = "pass"
)

// ReviewItem is a fully hydrated queue item ready to show a reviewer:
// metadata plus the rendered diff, fetched concurrently at lease time.
type ReviewItem struct {
	Ref      ItemRef      `json:"ref"`
	Metadata EditMetadata `json:"metadata"`
	Diff     string       `json:"diff"`
}

// ValidVerdict reports whether v is one of the accepted verdict strings.
func ValidVerdict(v string) bool {
	switch v {
	case VerdictInnocent, VerdictGuilty, VerdictPass:
		return true
	}
	return false
}
