// Package wiki is the HTTP client for the content platform's query API.
package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"vandalwatch/internal/models"
)

// ErrNotFound is returned when a revision is not (yet) queryable, which
// happens routinely while the platform replicates a fresh edit.
var ErrNotFound = errors.New("revision not found")

// Client talks to the content platform. Revision metadata is immutable, so
// successful FetchMetadata results are cached when a cache is configured.
type Client struct {
	baseURL string
	httpc   *http.Client
	cache   Cache
}

// New creates a client for the API at baseURL. cache may be nil.
func New(baseURL string, cache Cache) *Client {
	return &Client{
		baseURL: baseURL,
		cache:   cache,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchMetadata returns the metadata for one revision, or ErrNotFound when
// the platform has not replicated it yet.
func (c *Client) FetchMetadata(ctx context.Context, revisionID uint64) (*models.EditMetadata, error) {
	key := "rev:" + strconv.FormatUint(revisionID, 10)
	if c.cache != nil {
		if data, err := c.cache.Get(key); err == nil && len(data) > 0 {
			var md models.EditMetadata
			if err := json.Unmarshal(data, &md); err == nil {
				return &md, nil
			}
		}
	}

	var md models.EditMetadata
	url := fmt.Sprintf("%s/revisions/%d", c.baseURL, revisionID)
	if err := c.getJSON(ctx, url, &md); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if data, err := json.Marshal(&md); err == nil {
			_ = c.cache.Set(key, data, time.Hour)
		}
	}
	return &md, nil
}

// FetchRecentRevisions returns up to depth revisions of a page, most
// recent first.
func (c *Client) FetchRecentRevisions(ctx context.Context, pageID uint64, depth int) ([]models.EditMetadata, error) {
	var revs []models.EditMetadata
	url := fmt.Sprintf("%s/pages/%d/revisions?limit=%d", c.baseURL, pageID, depth)
	if err := c.getJSON(ctx, url, &revs); err != nil {
		return nil, err
	}
	return revs, nil
}

// FetchMostRecent returns the current most-recent revision id for each of
// the given pages. Pages the platform no longer knows are absent from the
// result.
func (c *Client) FetchMostRecent(ctx context.Context, pageIDs []uint64) (map[uint64]uint64, error) {
	body, err := json.Marshal(map[string][]uint64{"page_ids": pageIDs})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pages/latest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch most recent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch most recent: HTTP %s", resp.Status)
	}

	// JSON object keys are strings; convert back to page ids.
	var raw map[string]uint64
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	latest := make(map[uint64]uint64, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue
		}
		latest[id] = v
	}
	return latest, nil
}

// FetchUserPermissions returns the permission set of a user. Usernames can
// legally contain characters reserved in URLs ("%", "?", "/"), so the path
// segment is escaped before building the request.
func (c *Client) FetchUserPermissions(ctx context.Context, user string) (map[string]bool, error) {
	var perms []string
	u := c.baseURL + "/users/" + url.PathEscape(user) + "/permissions"
	if err := c.getJSON(ctx, u, &perms); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set, nil
}

// FetchRollbackToken returns a fresh native-rollback token for a revision.
// Tokens are tied to the requesting session context and expire, so they
// are never cached.
func (c *Client) FetchRollbackToken(ctx context.Context, revisionID uint64) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	url := fmt.Sprintf("%s/revisions/%d/rollback-token", c.baseURL, revisionID)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// FetchDiff returns the rendered diff of a revision against its parent.
func (c *Client) FetchDiff(ctx context.Context, revisionID uint64) (string, error) {
	url := fmt.Sprintf("%s/revisions/%d/diff", c.baseURL, revisionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch diff: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch diff: HTTP %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("content api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("content api: HTTP %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
