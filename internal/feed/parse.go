package feed

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrBadNotification is returned for raw feed payloads that carry no
// recognizable revision id.
var ErrBadNotification = errors.New("notification carries no revision id")

// ParseRevisionID extracts a revision id from a raw notification: either a
// bare decimal id or a diff URL carrying the id in a query parameter.
func ParseRevisionID(raw string) (uint64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrBadNotification
	}

	if rid, err := strconv.ParseUint(s, 10, 64); err == nil {
		return rid, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return 0, ErrBadNotification
	}
	q := u.Query()
	for _, param := range []string{"diff", "oldid", "revid"} {
		v := q.Get(param)
		if v == "" || v == "prev" || v == "next" {
			continue
		}
		if rid, err := strconv.ParseUint(v, 10, 64); err == nil {
			return rid, nil
		}
	}
	return 0, ErrBadNotification
}
