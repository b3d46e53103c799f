// Package detector decides whether an edit was itself a revert and, when it
// was, locates the edit it undid. It is precision-first: false negatives are
// cheap (vandalism surfaces again on its own) while false positives wrongly
// penalize an innocent edit, so every ambiguity resolves to "no offender".
package detector

import (
	"context"
	"log/slog"
	"strings"

	"vandalwatch/internal/models"
)

// ContentAPI is the slice of the platform client the detector needs.
type ContentAPI interface {
	FetchRecentRevisions(ctx context.Context, pageID uint64, depth int) ([]models.EditMetadata, error)
	FetchUserPermissions(ctx context.Context, user string) (map[string]bool, error)
}

// Result is the outcome of inspecting one edit. Origin is None when the
// comment matched no revert pattern or when the revert turned out to be a
// self-revert. Offender is nil whenever no offending edit was located.
type Result struct {
	Origin     models.RevertOrigin
	Offender   *models.OffendingEdit
	SelfRevert bool
}

// Detector locates offending edits behind revert comments.
type Detector struct {
	api   ContentAPI
	depth int // how many revisions back to search for the accused
}

// New creates a detector searching up to depth revisions back.
func New(api ContentAPI, depth int) *Detector {
	return &Detector{api: api, depth: depth}
}

// Inspect runs both detection stages for md. It never returns an error:
// the failure mode is silence, not propagation.
func (d *Detector) Inspect(ctx context.Context, md models.EditMetadata) Result {
	origin := classifyComment(md.Comment)
	if origin == models.OriginNone {
		return Result{Origin: models.OriginNone}
	}

	// Bots are trusted by signature alone; humans must hold rollback
	// privileges before their comment is believed.
	if origin == models.OriginHuman {
		perms, err := d.api.FetchUserPermissions(ctx, md.User)
		if err != nil || !perms["rollback"] {
			return Result{Origin: origin}
		}
	}

	accused := extractAccused(md.Comment)
	if accused == "" {
		return Result{Origin: origin}
	}
	if strings.EqualFold(accused, md.User) {
		// Self-reverts are not vandalism-indicative.
		return Result{Origin: models.OriginNone, SelfRevert: true}
	}

	revs, err := d.api.FetchRecentRevisions(ctx, md.PageID, d.depth)
	if err != nil {
		slog.Warn("offender back-search failed", "page", md.PageID, "error", err)
		return Result{Origin: origin}
	}

	for _, rev := range revs {
		if rev.RevisionID == md.RevisionID {
			continue
		}
		if strings.EqualFold(rev.User, accused) {
			return Result{
				Origin: origin,
				Offender: &models.OffendingEdit{
					Offender:           rev,
					FlaggingRevisionID: md.RevisionID,
					Origin:             origin,
				},
			}
		}
	}

	return Result{Origin: origin}
}

// classifyComment runs stage 1: the ordered pattern table over the
// upper-cased comment. First match decides revert-ness and origin.
func classifyComment(comment string) models.RevertOrigin {
	upper := strings.ToUpper(strings.TrimSpace(comment))
	for _, p := range revertPatterns {
		if p.match.MatchString(upper) {
			return p.origin
		}
	}
	return models.OriginNone
}

// extractAccused parses the accused username out of the comment and strips
// wiki-link and talk-page decorations. Empty means extraction failed.
func extractAccused(comment string) string {
	m := accusedRe.FindStringSubmatch(comment)
	if m == nil {
		return ""
	}
	return normalizeUser(m[1])
}

// normalizeUser unwraps forms like "[[Special:Contributions/X|X]] ([[User
// talk:X|talk]])" down to the bare username X.
func normalizeUser(raw string) string {
	s := strings.TrimSpace(raw)
	s = decorationRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "[[")
	s = strings.TrimSuffix(s, "]]")
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	for _, prefix := range []string{"Special:Contributions/", "Special:Contribs/", "User talk:", "User:"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = rest
			break
		}
	}
	s = strings.TrimSuffix(s, "]]")
	return strings.TrimSpace(s)
}
