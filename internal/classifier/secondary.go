package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Secondary queries an independent external scoring source for an edit.
// Calls are best-effort: a failure here must never fail the edit's primary
// classification, so callers log and move on.
type Secondary struct {
	baseURL string
	httpc   *http.Client
}

// NewSecondary creates a client for the independent scorer, or nil when no
// URL is configured.
func NewSecondary(baseURL string) *Secondary {
	if baseURL == "" {
		return nil
	}
	return &Secondary{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Score fetches the external score for one revision.
func (s *Secondary) Score(ctx context.Context, revisionID uint64) (float64, error) {
	url := fmt.Sprintf("%s/scores/%d", s.baseURL, revisionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("secondary scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("secondary scorer: HTTP %s", resp.Status)
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Score, nil
}
