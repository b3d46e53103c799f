// Package classifier holds the narrow contract to the external scoring
// model and the feature extraction that feeds it.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Classifier is the model contract. Classify maps a feature vector to a
// vandalism probability; Train submits labelled examples;
// RetrainInterval is the number of classified edits between retrains,
// -1 meaning never.
type Classifier interface {
	Classify(ctx context.Context, f Features) (float64, error)
	Train(ctx context.Context, examples []Example) error
	RetrainInterval() int
}

// Example is one labelled training instance.
type Example struct {
	Features  Features `json:"features"`
	Vandalism bool     `json:"vandalism"`
}

// HTTPClassifier talks JSON to an external model service.
type HTTPClassifier struct {
	baseURL      string
	httpc        *http.Client
	retrainEvery int
}

// NewHTTP creates a classifier client. retrainEvery of -1 disables
// retraining.
func NewHTTP(baseURL string, retrainEvery int) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL:      baseURL,
		retrainEvery: retrainEvery,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Classify posts the feature vector and returns the model's score.
func (c *HTTPClassifier) Classify(ctx context.Context, f Features) (float64, error) {
	var out struct {
		Score float64 `json:"score"`
	}
	if err := c.postJSON(ctx, "/classify", f, &out); err != nil {
		return 0, fmt.Errorf("classify: %w", err)
	}
	return out.Score, nil
}

// Train submits labelled examples to the model service.
func (c *HTTPClassifier) Train(ctx context.Context, examples []Example) error {
	if err := c.postJSON(ctx, "/train", examples, nil); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	return nil
}

// RetrainInterval returns the configured retrain cadence.
func (c *HTTPClassifier) RetrainInterval() int {
	return c.retrainEvery
}

func (c *HTTPClassifier) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
