package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v3"

	"vandalwatch/internal/config"
	"vandalwatch/internal/models"
	"vandalwatch/internal/session"
)

// fakeStore backs both the session layer and the feedback endpoint.
type fakeStore struct {
	mu       sync.Mutex
	items    []models.ItemRef
	leased   map[uint64]bool
	feedback map[uint64]string
	deleted  []uint64
	metadata map[uint64]*models.EditMetadata
}

func newAPIStore(items ...models.ItemRef) *fakeStore {
	s := &fakeStore{
		items:    items,
		leased:   make(map[uint64]bool),
		feedback: make(map[uint64]string),
		metadata: make(map[uint64]*models.EditMetadata),
	}
	for _, ref := range items {
		s.metadata[ref.RevisionID] = &models.EditMetadata{
			RevisionID: ref.RevisionID,
			PageID:     ref.PageID,
			User:       "203.0.113.9",
			UserIsAnon: true,
		}
	}
	return s
}

func (s *fakeStore) LeaseBatch(ctx context.Context, channel, sessionID string, reservationID int64, limit int) ([]models.ItemRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ItemRef
	for _, ref := range s.items {
		if len(out) >= limit || s.leased[ref.RevisionID] {
			continue
		}
		s.leased[ref.RevisionID] = true
		out = append(out, ref)
	}
	return out, nil
}

func (s *fakeStore) ReleaseReservation(ctx context.Context, reservationID int64) error {
	return nil
}

func (s *fakeStore) DeleteItem(ctx context.Context, revisionID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, revisionID)
	return nil
}

func (s *fakeStore) InsertFeedback(ctx context.Context, revisionID uint64, sessionID, verdict string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[revisionID] = verdict
	return nil
}

func (s *fakeStore) GetMetadata(ctx context.Context, revisionID uint64) (*models.EditMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata[revisionID], nil
}

type fakeHydrator struct{}

func (fakeHydrator) Hydrate(ctx context.Context, ref models.ItemRef, withToken bool) (*models.ReviewItem, error) {
	item := &models.ReviewItem{Ref: ref, Diff: "diff"}
	item.Metadata.RevisionID = ref.RevisionID
	item.Metadata.PageID = ref.PageID
	return item, nil
}

func testApp(store *fakeStore) (*fiber.App, *session.Manager) {
	cfg := &config.Config{
		WorkerCount:        2,
		DefaultChannel:     "main",
		MinQueueSize:       1,
		CacheCapacity:      4,
		LeaseBatchSize:     2,
		ReservationHistory: 3,
	}
	mgr := session.NewManager(cfg, store, fakeHydrator{})

	sessionHandler := NewSessionHandler(mgr, []string{"main", "external"})
	queueHandler := NewQueueHandler(mgr, store, nil)

	app := fiber.New()
	sessions := app.Group("/api/sessions")
	sessions.Post("/", sessionHandler.Open)
	sessions.Delete("/:id", sessionHandler.Close)
	sessions.Put("/:id/channel", sessionHandler.SetChannel)
	sessions.Put("/:id/rollback", sessionHandler.SetRollback)
	sessions.Get("/:id/next", queueHandler.Next)
	sessions.Post("/:id/feedback", queueHandler.Feedback)

	return app, mgr
}

type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, fiber.TestConfig{Timeout: 0})
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp.StatusCode, env
}

func openSession(t *testing.T, app *fiber.App, channel string) string {
	t.Helper()

	var body any
	if channel != "" {
		body = map[string]string{"channel": channel}
	}
	code, env := doJSON(t, app, http.MethodPost, "/api/sessions/", body)
	if code != http.StatusOK {
		t.Fatalf("open session: HTTP %d (%s)", code, env.Error)
	}
	var data struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("open session: %v", err)
	}
	return data.SessionID
}

func TestSessionLifecycle(t *testing.T) {
	store := newAPIStore(models.ItemRef{RevisionID: 100, PageID: 1})
	app, _ := testApp(store)

	id := openSession(t, app, "")

	code, _ := doJSON(t, app, http.MethodDelete, "/api/sessions/"+id, nil)
	if code != http.StatusOK {
		t.Fatalf("close session: HTTP %d", code)
	}

	// A closed session is gone.
	code, _ = doJSON(t, app, http.MethodGet, "/api/sessions/"+id+"/next", nil)
	if code != http.StatusNotFound {
		t.Errorf("next on closed session: HTTP %d, want 404", code)
	}
}

func TestOpenRejectsUnknownChannel(t *testing.T) {
	app, _ := testApp(newAPIStore())

	code, env := doJSON(t, app, http.MethodPost, "/api/sessions/", map[string]string{"channel": "bogus"})
	if code != http.StatusBadRequest {
		t.Errorf("HTTP %d (%s), want 400", code, env.Error)
	}
}

func TestNextReturnsItem(t *testing.T) {
	store := newAPIStore(
		models.ItemRef{RevisionID: 100, PageID: 1},
		models.ItemRef{RevisionID: 101, PageID: 2},
	)
	app, _ := testApp(store)
	id := openSession(t, app, "main")

	code, env := doJSON(t, app, http.MethodGet, "/api/sessions/"+id+"/next", nil)
	if code != http.StatusOK {
		t.Fatalf("next: HTTP %d (%s)", code, env.Error)
	}

	var item models.ReviewItem
	if err := json.Unmarshal(env.Data, &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.Ref.RevisionID != 100 && item.Ref.RevisionID != 101 {
		t.Errorf("unexpected revision %d", item.Ref.RevisionID)
	}
	if item.Diff == "" {
		t.Error("item served without a diff")
	}
}

func TestFeedbackRetiresItem(t *testing.T) {
	store := newAPIStore(models.ItemRef{RevisionID: 100, PageID: 1})
	app, _ := testApp(store)
	id := openSession(t, app, "main")

	code, env := doJSON(t, app, http.MethodPost, "/api/sessions/"+id+"/feedback",
		map[string]any{"revision_id": 100, "verdict": models.VerdictGuilty})
	if code != http.StatusOK {
		t.Fatalf("feedback: HTTP %d (%s)", code, env.Error)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.feedback[100] != models.VerdictGuilty {
		t.Errorf("feedback verdict = %q, want guilty", store.feedback[100])
	}
	if len(store.deleted) != 1 || store.deleted[0] != 100 {
		t.Errorf("deleted = %v, want [100]", store.deleted)
	}
}

func TestFeedbackRejectsBadVerdict(t *testing.T) {
	store := newAPIStore(models.ItemRef{RevisionID: 100, PageID: 1})
	app, _ := testApp(store)
	id := openSession(t, app, "main")

	code, _ := doJSON(t, app, http.MethodPost, "/api/sessions/"+id+"/feedback",
		map[string]any{"revision_id": 100, "verdict": "maybe"})
	if code != http.StatusBadRequest {
		t.Errorf("HTTP %d, want 400", code)
	}
}

func TestSetChannelValidation(t *testing.T) {
	store := newAPIStore()
	app, _ := testApp(store)
	id := openSession(t, app, "main")

	code, _ := doJSON(t, app, http.MethodPut, "/api/sessions/"+id+"/channel",
		map[string]string{"channel": "bogus"})
	if code != http.StatusBadRequest {
		t.Errorf("unknown channel: HTTP %d, want 400", code)
	}

	code, _ = doJSON(t, app, http.MethodPut, "/api/sessions/"+id+"/channel",
		map[string]string{"channel": "external"})
	if code != http.StatusOK {
		t.Errorf("valid channel: HTTP %d, want 200", code)
	}
}

type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

func TestHealthCheck(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", NewHealthHandler(okPinger{}).Check)

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: HTTP %d, want 200", resp.StatusCode)
	}
}
