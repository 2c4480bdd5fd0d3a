package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/opsboard/opsboard/internal/docstore"
	"github.com/opsboard/opsboard/internal/domain/ops"
	"github.com/opsboard/opsboard/internal/live"
	"github.com/opsboard/opsboard/internal/platform/assistant"
	"github.com/opsboard/opsboard/internal/platform/excel"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, docstore.Store) {
	t.Helper()
	store := docstore.NewMemStore()
	return newTestHandlerWithStore(t, store), echo.New(), store
}

func newTestHandlerWithStore(t *testing.T, store docstore.Store) *Handler {
	t.Helper()
	syncer := live.NewSyncer(store, zerolog.Nop())
	if err := syncer.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(syncer.Close)
	waitForLoad(t, syncer)

	gw := ops.NewGateway(store, ops.PolicyPassthrough, zerolog.Nop())
	return NewHandler(syncer, gw, assistant.NewClient("", "", ""), zerolog.Nop())
}

// waitForLoad blocks until every collection has received its initial snapshot.
func waitForLoad(t *testing.T, syncer *live.Syncer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := syncer.Status()
		pending := false
		for _, loading := range st.Loading {
			if loading {
				pending = true
			}
		}
		if !pending {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("syncer never finished loading")
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}

func jsonRequest(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_GetKPI_NotYetComputed(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := jsonRequest(e, http.MethodGet, "")

	err := h.GetKPI(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any data, got %v", err)
	}
}

func TestHandler_CreatePatientThenRead(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, rec := jsonRequest(e, http.MethodPost, `{"name":"Aarav Mehta","age":34,"diagnosis":"Asthma","status":"Admitted"}`)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}

	waitUntil(t, func() bool { return len(h.sync.Patients()) == 1 })

	c, rec = jsonRequest(e, http.MethodGet, "")
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var patients []ops.Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &patients); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(patients) != 1 || patients[0].Name != "Aarav Mehta" {
		t.Errorf("unexpected patients payload: %+v", patients)
	}

	// One patient is enough for the KPI to become computable.
	c, rec = jsonRequest(e, http.MethodGet, "")
	waitUntil(t, func() bool { return h.sync.KPI() != nil })
	if err := h.GetKPI(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var kpi ops.DashboardKPI
	if err := json.Unmarshal(rec.Body.Bytes(), &kpi); err != nil {
		t.Fatalf("unmarshal kpi: %v", err)
	}
	if kpi.TotalPatients != 1 {
		t.Errorf("expected totalPatients 1, got %d", kpi.TotalPatients)
	}
}

func TestHandler_CreatePatient_BadRequest(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := jsonRequest(e, http.MethodPost, `{"age":34}`)

	err := h.CreatePatient(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %v", err)
	}
}

// faultStore delegates to MemStore but fails every write, standing in for a
// store whose backing connection is down.
type faultStore struct {
	*docstore.MemStore
	err error
}

func (f *faultStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	return "", f.err
}

func (f *faultStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return f.err
}

func TestHandler_CreatePatient_StoreFailureIsBadGateway(t *testing.T) {
	store := &faultStore{MemStore: docstore.NewMemStore(), err: errors.New("connection refused")}
	h := newTestHandlerWithStore(t, store)
	e := echo.New()

	// A valid payload that fails at the store is the server's fault, not the
	// caller's.
	c, _ := jsonRequest(e, http.MethodPost, `{"name":"Aarav Mehta","age":34,"status":"Admitted"}`)
	err := h.CreatePatient(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for store failure, got %v", err)
	}

	// An invalid payload against the same broken store is still the caller's
	// fault and stays 400.
	c, _ = jsonRequest(e, http.MethodPost, `{"age":34}`)
	err = h.CreatePatient(c)
	he, ok = err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %v", err)
	}
}

func TestHandler_UpdateResource_StoreFailureIsBadGateway(t *testing.T) {
	store := &faultStore{MemStore: docstore.NewMemStore(), err: errors.New("connection refused")}
	h := newTestHandlerWithStore(t, store)
	e := echo.New()

	c, _ := jsonRequest(e, http.MethodPut, `{"used":10}`)
	c.SetParamNames("id")
	c.SetParamValues("beds")

	err := h.UpdateResource(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for store failure, got %v", err)
	}
}

func TestHandler_UpdatePatient_NotFound(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := jsonRequest(e, http.MethodPut, `{"status":"Discharged"}`)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.UpdatePatient(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, e, store := newTestHandler(t)
	ctx := context.Background()
	id, err := store.Add(ctx, ops.ColPatients, map[string]any{"name": "Tbd", "age": 40, "status": "Admitted", "createdAt": time.Now()})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	c, rec := jsonRequest(e, http.MethodDelete, "")
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	waitUntil(t, func() bool { return len(h.sync.Patients()) == 0 })
}

func TestHandler_BulkCreateStaff(t *testing.T) {
	h, e, _ := newTestHandler(t)
	body := `[
		{"name":"Dr. A","role":"Doctor","department":"ER","shift":"Morning"},
		{"name":"Nurse B","role":"Nurse","department":"ICU","shift":"Night"}
	]`
	c, rec := jsonRequest(e, http.MethodPost, body)

	if err := h.BulkCreateStaff(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	var resp map[string]int
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["accepted"] != 2 {
		t.Errorf("expected accepted 2, got %d", resp["accepted"])
	}
	waitUntil(t, func() bool { return len(h.sync.Staff()) == 2 })
}

func TestHandler_UpdateResource(t *testing.T) {
	h, e, store := newTestHandler(t)
	ctx := context.Background()
	id, _ := store.Add(ctx, ops.ColResources, map[string]any{"name": "Beds", "used": 10, "total": 100, "unit": "beds"})

	c, rec := jsonRequest(e, http.MethodPut, `{"used":42,"total":100}`)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.UpdateResource(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	waitUntil(t, func() bool {
		rs := h.sync.Resources()
		return len(rs) == 1 && rs[0].Used == 42
	})
}

func TestHandler_AcknowledgeAlert(t *testing.T) {
	h, e, store := newTestHandler(t)
	ctx := context.Background()
	id, _ := store.Add(ctx, ops.ColAlerts, map[string]any{
		"type": "warning", "message": "Oxygen low", "department": "General",
		"acknowledged": false, "timestamp": time.Now(),
	})

	c, rec := jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.AcknowledgeAlert(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	waitUntil(t, func() bool {
		as := h.sync.Alerts()
		return len(as) == 1 && as[0].Acknowledged
	})
}

func TestHandler_GetInsights(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, rec := jsonRequest(e, http.MethodGet, "")

	if err := h.GetInsights(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var insights []ops.Insight
	if err := json.Unmarshal(rec.Body.Bytes(), &insights); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(insights) != 4 {
		t.Errorf("expected 4 insight cards, got %d", len(insights))
	}
}

func TestHandler_GetStatus(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, rec := jsonRequest(e, http.MethodGet, "")

	if err := h.GetStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st live.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for col, loading := range st.Loading {
		if loading {
			t.Errorf("%s should be loaded", col)
		}
	}
	if len(st.Errors) != 0 {
		t.Errorf("unexpected errors: %v", st.Errors)
	}
}

func TestHandler_ExportPatients(t *testing.T) {
	h, e, store := newTestHandler(t)
	ctx := context.Background()
	store.Add(ctx, ops.ColPatients, map[string]any{"name": "Exported", "age": 51, "status": "ICU", "createdAt": time.Now()})
	waitUntil(t, func() bool { return len(h.sync.Patients()) == 1 })

	c, rec := jsonRequest(e, http.MethodGet, "")
	if err := h.ExportPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != xlsxContentType {
		t.Errorf("unexpected content type %q", ct)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("response is not a workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
}

func TestHandler_ImportPatients(t *testing.T) {
	h, e, _ := newTestHandler(t)

	wb, err := excel.PatientTemplate()
	if err != nil {
		t.Fatalf("PatientTemplate: %v", err)
	}
	var workbook bytes.Buffer
	if err := wb.Write(&workbook); err != nil {
		t.Fatalf("Write: %v", err)
	}
	wb.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "patients.xlsx")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(workbook.Bytes())
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ImportPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp importResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Imported != 1 || resp.Dropped != 0 {
		t.Errorf("expected 1 imported / 0 dropped, got %+v", resp)
	}
	waitUntil(t, func() bool { return len(h.sync.Patients()) == 1 })
}

func TestHandler_ImportPatients_MissingFile(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := jsonRequest(e, http.MethodPost, "")

	err := h.ImportPatients(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without multipart file, got %v", err)
	}
}

func TestHandler_PatientTemplateDownload(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, rec := jsonRequest(e, http.MethodGet, "")

	if err := h.PatientTemplate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if _, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("template is not a workbook: %v", err)
	}
}

func TestHandler_AskAssistant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		msgs := req["messages"].([]any)
		user := msgs[1].(map[string]any)["content"].(string)
		if !strings.Contains(user, "How many beds are free?") {
			t.Errorf("question missing from prompt: %q", user)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "22 beds are free."}},
			},
		})
	}))
	defer srv.Close()

	store := docstore.NewMemStore()
	h := newTestHandlerWithStore(t, store)
	h.assist = assistant.NewClient(srv.URL, "test-key", "")
	e := echo.New()

	c, rec := jsonRequest(e, http.MethodPost, `{"question":"How many beds are free?"}`)
	if err := h.AskAssistant(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp askResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Answer != "22 beds are free." {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
}

func TestHandler_AskAssistant_NotConfigured(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := jsonRequest(e, http.MethodPost, `{"question":"anything"}`)

	err := h.AskAssistant(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without an API key, got %v", err)
	}
}

func TestHandler_AskAssistant_EmptyQuestion(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c, _ := jsonRequest(e, http.MethodPost, `{}`)

	err := h.AskAssistant(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty question, got %v", err)
	}
}
