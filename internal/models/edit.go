package models

import "time"

// NamespaceMain is the article namespace; edits elsewhere are not monitored.
const NamespaceMain = 0

// RevertOrigin classifies who performed a revert.
type RevertOrigin string

const (
	OriginNone  RevertOrigin = "none"
	OriginHuman RevertOrigin = "human"
	OriginBot   RevertOrigin = "bot"
)

// EditRef is a revision waiting out replication lag in the admission queue.
// It is immutable once offered except for the retry counter, which the
// worker decrements when the platform has not yet replicated the edit.
type EditRef struct {
	RevisionID       uint64
	PageID           uint64
	RetriesRemaining int
	NotBefore        time.Time
}

// EditMetadata describes one revision as reported by the content API.
// IsRevert is set by the pipeline, not the API.
type EditMetadata struct {
	RevisionID    uint64    `json:"revision_id"`
	PageID        uint64    `json:"page_id"`
	Timestamp     time.Time `json:"timestamp"`
	Namespace     int       `json:"namespace"`
	Title         string    `json:"title"`
	User          string    `json:"user"`
	UserIsAnon    bool      `json:"user_is_anonymous"`
	UserEditCount int64     `json:"user_edit_count"`
	Comment       string    `json:"comment"`
	Country       string    `json:"country"`
	Tags          []string  `json:"tags"`
	SizeOld       int       `json:"size_old"`
	SizeNew       int       `json:"size_new"`
	RollbackToken string    `json:"rollback_token,omitempty"`
	IsRevert      bool      `json:"is_revert"`
}

// OffendingEdit is the edit a confirmed revert undid - presumed vandalism.
// Written once; never mutated.
type OffendingEdit struct {
	Offender           EditMetadata `json:"offender"`
	FlaggingRevisionID uint64       `json:"flagging_revision_id"`
	Origin             RevertOrigin `json:"origin"`
}

// ScoredItem is one row in a scoring channel. At most one active row per
// page per channel: inserting supersedes any prior row for that page.
type ScoredItem struct {
	Channel       string  `json:"channel"`
	RevisionID    uint64  `json:"revision_id"`
	PageID        uint64  `json:"page_id"`
	Score         float64 `json:"score"`
	QueueEligible bool    `json:"queue_eligible"`
}

// ItemRef is a (revision, page) pair leased from a scoring channel.
type ItemRef struct {
	RevisionID uint64 `json:"revision_id"`
	PageID     uint64 `json:"page_id"`
}
