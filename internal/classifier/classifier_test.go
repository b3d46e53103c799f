package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vandalwatch/internal/models"
)

func TestExtract(t *testing.T) {
	md := models.EditMetadata{
		Comment:       "REMOVED stuff",
		SizeOld:       100,
		SizeNew:       40,
		UserIsAnon:    true,
		UserEditCount: 3,
		Timestamp:     time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC), // a Saturday
		IsRevert:      true,
	}

	f := Extract(md)
	if f.CommentLength != 13 {
		t.Errorf("CommentLength = %v, want 13", f.CommentLength)
	}
	if f.SizeDelta != -60 {
		t.Errorf("SizeDelta = %v, want -60", f.SizeDelta)
	}
	if f.Anonymous != 1 || f.IsRevert != 1 || f.Weekend != 1 {
		t.Errorf("flags = anon %v revert %v weekend %v, want all 1", f.Anonymous, f.IsRevert, f.Weekend)
	}
	if f.HourOfDay != 14 {
		t.Errorf("HourOfDay = %v, want 14", f.HourOfDay)
	}
}

func TestCapsRatio(t *testing.T) {
	tests := []struct {
		s    string
		want float64
	}{
		{"", 0},
		{"1234", 0},
		{"HELLO", 1},
		{"HEllo", 0.4},
	}
	for _, tt := range tests {
		if got := capsRatio(tt.s); got != tt.want {
			t.Errorf("capsRatio(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/classify":
			var f Features
			json.NewDecoder(r.Body).Decode(&f)
			json.NewEncoder(w).Encode(map[string]float64{"score": f.Anonymous * 0.9})
		case "/train":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL, 100)

	score, err := c.Classify(context.Background(), Features{Anonymous: 1})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if score != 0.9 {
		t.Errorf("Classify() = %v, want 0.9", score)
	}

	if err := c.Train(context.Background(), []Example{{Vandalism: true}}); err != nil {
		t.Errorf("Train() error = %v", err)
	}
	if c.RetrainInterval() != 100 {
		t.Errorf("RetrainInterval() = %d, want 100", c.RetrainInterval())
	}
}

// countingClassifier records Train calls for trainer cadence tests.
type countingClassifier struct {
	mu         sync.Mutex
	every      int
	trainCalls int
	trained    int
	fail       bool
}

func (c *countingClassifier) Classify(ctx context.Context, f Features) (float64, error) {
	return 0.5, nil
}

func (c *countingClassifier) Train(ctx context.Context, examples []Example) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("model unavailable")
	}
	c.trainCalls++
	c.trained += len(examples)
	return nil
}

func (c *countingClassifier) RetrainInterval() int { return c.every }

func TestTrainerCadence(t *testing.T) {
	c := &countingClassifier{every: 3}
	tr := NewTrainer(c)

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		tr.Record(ctx, Example{Vandalism: i%2 == 0})
	}

	if c.trainCalls != 2 {
		t.Errorf("train calls = %d, want 2 (after examples 3 and 6)", c.trainCalls)
	}
	if c.trained != 6 {
		t.Errorf("examples trained = %d, want 6", c.trained)
	}
}

func TestTrainerDisabled(t *testing.T) {
	c := &countingClassifier{every: -1}
	tr := NewTrainer(c)

	for i := 0; i < 10; i++ {
		tr.Record(context.Background(), Example{})
	}
	if c.trainCalls != 0 {
		t.Errorf("train calls = %d, want 0 with retraining disabled", c.trainCalls)
	}
}

func TestTrainerKeepsBufferOnFailure(t *testing.T) {
	c := &countingClassifier{every: 2, fail: true}
	tr := NewTrainer(c)

	ctx := context.Background()
	tr.Record(ctx, Example{})
	tr.Record(ctx, Example{}) // triggers a failing retrain

	c.mu.Lock()
	c.fail = false
	c.mu.Unlock()

	tr.Flush(ctx)
	if c.trained != 2 {
		t.Errorf("examples trained after recovery = %d, want 2", c.trained)
	}
}

func TestSecondaryScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scores/42" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]float64{"score": 0.7})
	}))
	defer srv.Close()

	s := NewSecondary(srv.URL)
	score, err := s.Score(context.Background(), 42)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if score != 0.7 {
		t.Errorf("Score() = %v, want 0.7", score)
	}

	if NewSecondary("") != nil {
		t.Error("NewSecondary(\"\") != nil")
	}
}
