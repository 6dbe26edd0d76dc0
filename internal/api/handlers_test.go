package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"safepulse/internal/alert"
	"safepulse/internal/config"
	"safepulse/internal/logging"
	"safepulse/internal/models"
)

type fakeEngine struct {
	triggerID  uuid.UUID
	triggerErr error
	resolveErr error
	mergeErr   error

	gotTrigger *models.IncidentTrigger
	gotMerge   *models.LocationUpdate
}

func (f *fakeEngine) Trigger(_ context.Context, in models.IncidentTrigger) (uuid.UUID, error) {
	f.gotTrigger = &in
	return f.triggerID, f.triggerErr
}

func (f *fakeEngine) Resolve(_ context.Context, _ uuid.UUID) error {
	return f.resolveErr
}

func (f *fakeEngine) MergeLocation(_ context.Context, _ string, upd models.LocationUpdate) error {
	f.gotMerge = &upd
	return f.mergeErr
}

type fakeHistory struct {
	alert       *models.Alert
	alertErr    error
	alerts      []models.Alert
	contacts    []models.TrustedContact
	transitions []models.Transition
	locations   []models.LocationUpdate
	appendErr   error

	gotLimit, gotOffset int
	gotSince            time.Time
}

func (f *fakeHistory) GetAlert(_ context.Context, _ uuid.UUID) (*models.Alert, error) {
	return f.alert, f.alertErr
}

func (f *fakeHistory) AlertsByUserID(_ context.Context, _ string, limit, offset int) ([]models.Alert, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return f.alerts, nil
}

func (f *fakeHistory) ContactsByUserID(_ context.Context, _ string) ([]models.TrustedContact, error) {
	return f.contacts, nil
}

func (f *fakeHistory) TransitionsByAlertID(_ context.Context, _ uuid.UUID) ([]models.Transition, error) {
	return f.transitions, nil
}

func (f *fakeHistory) AppendLocation(_ context.Context, _ models.LocationUpdate) error {
	return f.appendErr
}

func (f *fakeHistory) LocationsSince(_ context.Context, _ string, since time.Time) ([]models.LocationUpdate, error) {
	f.gotSince = since
	return f.locations, nil
}

func newTestRouter(engine *fakeEngine, history *fakeHistory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logging.NewNop()
	var cfg config.Config
	cfg.API.BasePath = "/api/v0"
	h := NewHandler(engine, history, NewLiveHub(logger), logger)
	return NewRouter(logger, cfg, h)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateTriggerAccepted(t *testing.T) {
	engine := &fakeEngine{triggerID: uuid.New()}
	r := newTestRouter(engine, &fakeHistory{})

	w := doJSON(t, r, http.MethodPost, "/api/v0/triggers", gin.H{
		"user_id":   "user-1",
		"reason":    "automatic",
		"latitude":  22.57,
		"longitude": 88.36,
		"note":      "help",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["alert_id"] != engine.triggerID.String() {
		t.Errorf("alert_id = %q, want %s", resp["alert_id"], engine.triggerID)
	}
	if engine.gotTrigger == nil || engine.gotTrigger.Reason != models.ReasonAutomatic {
		t.Errorf("trigger passed to engine = %+v, want automatic reason", engine.gotTrigger)
	}
}

func TestCreateTriggerUnknownReasonDefaultsToManual(t *testing.T) {
	engine := &fakeEngine{triggerID: uuid.New()}
	r := newTestRouter(engine, &fakeHistory{})

	w := doJSON(t, r, http.MethodPost, "/api/v0/triggers", gin.H{
		"user_id": "user-1",
		"reason":  "sneeze",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if engine.gotTrigger.Reason != models.ReasonManual {
		t.Errorf("reason = %s, want manual fallback", engine.gotTrigger.Reason)
	}
}

func TestCreateTriggerMissingUserID(t *testing.T) {
	r := newTestRouter(&fakeEngine{}, &fakeHistory{})

	w := doJSON(t, r, http.MethodPost, "/api/v0/triggers", gin.H{"note": "help"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateTriggerNoRecipients(t *testing.T) {
	engine := &fakeEngine{triggerErr: alert.ErrNoRecipients}
	r := newTestRouter(engine, &fakeHistory{})

	w := doJSON(t, r, http.MethodPost, "/api/v0/triggers", gin.H{"user_id": "user-1"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestPushLocationMerged(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRouter(engine, &fakeHistory{})

	w := doJSON(t, r, http.MethodPost, "/api/v0/locations", gin.H{
		"user_id":   "user-1",
		"latitude":  22.58,
		"longitude": 88.37,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["merged"] {
		t.Error("merged = false, want true")
	}
	if engine.gotMerge == nil || engine.gotMerge.Timestamp.IsZero() {
		t.Error("missing timestamp was not defaulted before merge")
	}
}

func TestPushLocationWithoutActiveAlert(t *testing.T) {
	engine := &fakeEngine{mergeErr: alert.ErrUnknownAlert}
	r := newTestRouter(engine, &fakeHistory{})

	w := doJSON(t, r, http.MethodPost, "/api/v0/locations", gin.H{"user_id": "user-1"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 even without an active alert", w.Code)
	}

	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["merged"] {
		t.Error("merged = true, want false without an active alert")
	}
}

func TestResolveAlertNotFound(t *testing.T) {
	engine := &fakeEngine{resolveErr: alert.ErrUnknownAlert}
	r := newTestRouter(engine, &fakeHistory{})

	w := doJSON(t, r, http.MethodPost, "/api/v0/alerts/"+uuid.NewString()+"/resolve", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestResolveAlertOK(t *testing.T) {
	r := newTestRouter(&fakeEngine{}, &fakeHistory{})

	w := doJSON(t, r, http.MethodPost, "/api/v0/alerts/"+uuid.NewString()+"/resolve", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestResolveAlertInvalidID(t *testing.T) {
	r := newTestRouter(&fakeEngine{}, &fakeHistory{})

	w := doJSON(t, r, http.MethodPost, "/api/v0/alerts/not-a-uuid/resolve", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetAlertNotFound(t *testing.T) {
	history := &fakeHistory{alertErr: alert.ErrNotFound}
	r := newTestRouter(&fakeEngine{}, history)

	w := doJSON(t, r, http.MethodGet, "/api/v0/alerts/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetLocationsByUserID(t *testing.T) {
	history := &fakeHistory{}
	r := newTestRouter(&fakeEngine{}, history)

	since := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	w := doJSON(t, r, http.MethodGet, "/api/v0/locations/user/user-1?since="+since.Format(time.RFC3339), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !history.gotSince.Equal(since) {
		t.Errorf("since = %s, want %s", history.gotSince, since)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v0/locations/user/user-1?since=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed since", w.Code)
	}
}

func TestGetAlertsByUserIDPagination(t *testing.T) {
	history := &fakeHistory{}
	r := newTestRouter(&fakeEngine{}, history)

	w := doJSON(t, r, http.MethodGet, "/api/v0/alerts/user/user-1?limit=5&offset=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if history.gotLimit != 5 || history.gotOffset != 10 {
		t.Errorf("limit/offset = %d/%d, want 5/10", history.gotLimit, history.gotOffset)
	}

	// bad values fall back to defaults
	doJSON(t, r, http.MethodGet, "/api/v0/alerts/user/user-1?limit=-1&offset=x", nil)
	if history.gotLimit != 20 || history.gotOffset != 0 {
		t.Errorf("limit/offset = %d/%d, want defaults 20/0", history.gotLimit, history.gotOffset)
	}
}
