package detector

import (
	"regexp"

	"vandalwatch/internal/models"
)

// revertPattern pairs a comment pattern with the origin tag its match
// implies. Patterns are applied to the upper-cased comment, in order; the
// first match wins, so bot signatures come before the generic revert forms.
type revertPattern struct {
	match  *regexp.Regexp
	origin models.RevertOrigin
}

var revertPatterns = []revertPattern{
	// Known automated revert signatures.
	{regexp.MustCompile(`CLUEBOT`), models.OriginBot},
	{regexp.MustCompile(`XLINKBOT`), models.OriginBot},
	{regexp.MustCompile(`ANTIVANDALBOT`), models.OriginBot},
	{regexp.MustCompile(`SALEBOT`), models.OriginBot},
	{regexp.MustCompile(`^BOT: REVERT`), models.OriginBot},

	// Manual and tool-assisted reverts.
	{regexp.MustCompile(`^REVERTED EDITS? BY`), models.OriginHuman},
	{regexp.MustCompile(`^REVERTED \d+ EDITS?`), models.OriginHuman},
	{regexp.MustCompile(`^UNDID REVISION`), models.OriginHuman},
	{regexp.MustCompile(`^REVERT`), models.OriginHuman},
	{regexp.MustCompile(`^RVV?\b`), models.OriginHuman},
	{regexp.MustCompile(`ROLLBACK`), models.OriginHuman},
}

// accusedRe captures the accused username between the delimiter phrases of
// a standard rollback comment: "... by X to last version/revision by Y".
var accusedRe = regexp.MustCompile(`(?i)\bby (.+?) to last (?:version|revision) by`)

// decorationRe strips the parenthetical talk-page suffix, e.g. "(talk)".
var decorationRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
