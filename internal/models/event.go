package models

// RecentChange is the JSON envelope pushed on the notification feed for
// every edit event. Only the fields the pipeline needs are decoded.
type RecentChange struct {
	Type      string `json:"type"`
	Namespace int    `json:"namespace"`
	Title     string `json:"title"`
	User      string `json:"user"`
	Bot       bool   `json:"bot"`
	Comment   string `json:"comment"`
	PageID    uint64 `json:"page_id"`
	Revision  struct {
		Old uint64 `json:"old"`
		New uint64 `json:"new"`
	} `json:"revision"`
}
