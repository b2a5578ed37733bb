package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/edit"
	"github.com/matst80/slask-grid/pkg/master"
	"github.com/matst80/slask-grid/pkg/sorting"
	"github.com/matst80/slask-grid/pkg/types"
)

const sampleGrid = `Product ID;Description;ATT Color;ATT Size;DIST Retail;DIST Web;Price
1;Pine plank;Red;S;X;;10
2;Oak plank;Red;M;;X;20
3;Steel screw;Blue;L;X;X;5
4;Brass screw;Blue;S;;;8
`

const testSession = "f1db937c-10a3-4df0-9f93-09a79f77a22b"

type memStorage struct {
	files map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}}
}

func (m *memStorage) save(data any, filename string) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.files[filename] = b
	return nil
}

func (m *memStorage) load(output any, filename string) error {
	b, ok := m.files[filename]
	if !ok {
		return os.ErrNotExist
	}
	return json.Unmarshal(b, output)
}

func (m *memStorage) SaveGzippedJson(data any, filename string) error { return m.save(data, filename) }
func (m *memStorage) LoadGzippedJson(data any, filename string) error { return m.load(data, filename) }
func (m *memStorage) SaveJson(data any, filename string) error        { return m.save(data, filename) }
func (m *memStorage) LoadJson(data any, filename string) error        { return m.load(data, filename) }
func (m *memStorage) SaveGzippedGob(data any, filename string) error  { return m.save(data, filename) }
func (m *memStorage) LoadGzippedGob(data any, filename string) error  { return m.load(data, filename) }

func newTestServer(t *testing.T) (*WebServer, *master.Store) {
	t.Helper()
	store := master.NewStore(newMemStorage())
	if err := store.Replace(strings.NewReader(sampleGrid)); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	ws := &WebServer{
		Sessions: edit.NewManager(store, store, sorting.New(language.English)),
		Store:    store,
	}
	return ws, store
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target, sessionId string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sessionId})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("bad response body %q: %v", rec.Body.String(), err)
	}
}

func TestGetGridPaging(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	rec := doRequest(t, mux, "GET", "/grid?page=1&size=2", testSession, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, body %q", rec.Code, rec.Body.String())
	}
	var page edit.GridPage
	decodeBody(t, rec, &page)
	if page.Total != 4 || len(page.Records) != 2 {
		t.Fatalf("unexpected page shape: total=%d records=%d", page.Total, len(page.Records))
	}
	if page.Records[0].Id != 3 {
		t.Errorf("second page should start at record 3, got %d", page.Records[0].Id)
	}

	rec = doRequest(t, mux, "GET", "/grid?page=nope", testSession, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad page number should be refused, got %d", rec.Code)
	}
}

func TestFilterEndpoint(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	rec := doRequest(t, mux, "POST", "/filter", testSession, FilterRequest{Name: "ATT Color", Tokens: []string{"Red"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, body %q", rec.Code, rec.Body.String())
	}
	var resp FilterResponse
	decodeBody(t, rec, &resp)
	if resp.Total != 2 {
		t.Errorf("red filter should match 2 records, got %d", resp.Total)
	}
	var colors *edit.FacetGroup
	for i := range resp.Facets {
		if resp.Facets[i].Name == "ATT Color" {
			colors = &resp.Facets[i]
		}
	}
	if colors == nil {
		t.Fatal("color group missing from facets")
	}
	if len(colors.Selected) != 1 || colors.Selected[0] != "Red" {
		t.Errorf("selection not reflected: %v", colors.Selected)
	}

	rec = doRequest(t, mux, "GET", "/grid", testSession, nil)
	var page edit.GridPage
	decodeBody(t, rec, &page)
	if page.Total != 2 {
		t.Errorf("grid should honor the filter, total %d", page.Total)
	}

	rec = doRequest(t, mux, "POST", "/filter", testSession, FilterRequest{Name: "ATT Weight", Tokens: []string{"1kg"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown filter group should be refused, got %d", rec.Code)
	}
}

func TestSortEndpoint(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	rec := doRequest(t, mux, "POST", "/sort", testSession, SortRequest{Field: types.FieldPrice, Direction: "desc"})
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, body %q", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, mux, "GET", "/grid", testSession, nil)
	var page edit.GridPage
	decodeBody(t, rec, &page)
	if page.Records[0].Id != 2 {
		t.Errorf("descending price sort should lead with record 2, got %d", page.Records[0].Id)
	}

	rec = doRequest(t, mux, "POST", "/sort", testSession, SortRequest{Field: "ATT Weight"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown sort field should be refused, got %d", rec.Code)
	}
}

func TestEditAndCommit(t *testing.T) {
	ws, store := newTestServer(t)
	mux := ws.ClientHandler()

	rec := doRequest(t, mux, "POST", "/record/1", testSession, EditRequest{Field: types.FieldDescription, Value: "Pine plank, planed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit failed with %d: %q", rec.Code, rec.Body.String())
	}
	var edited EditResponse
	decodeBody(t, rec, &edited)
	if edited.Pending != 1 {
		t.Errorf("pending after one edit: %d", edited.Pending)
	}
	if len(edited.Record.Changed) != 1 || edited.Record.Changed[0] != types.FieldDescription {
		t.Errorf("record not marked as changed: %v", edited.Record.Changed)
	}
	if edited.Record.Original[types.FieldDescription] != "Pine plank" {
		t.Errorf("loaded value missing: %v", edited.Record.Original)
	}

	rec = doRequest(t, mux, "POST", "/commit", testSession, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit failed with %d: %q", rec.Code, rec.Body.String())
	}
	var committed CommitResponse
	decodeBody(t, rec, &committed)
	if !committed.Success || committed.Changes != 1 {
		t.Errorf("unexpected commit response: %+v", committed)
	}
	if store.Snapshot().Records[0].Description != "Pine plank, planed" {
		t.Error("commit did not reach the canonical grid")
	}

	rec = doRequest(t, mux, "GET", "/record/1", testSession, nil)
	var detail edit.RecordDetail
	decodeBody(t, rec, &detail)
	if len(detail.Changed) != 0 {
		t.Errorf("committed values are the new baseline, got changed %v", detail.Changed)
	}
}

func TestCommitEmpty(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	rec := doRequest(t, mux, "POST", "/commit", testSession, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty commit should be refused, got %d", rec.Code)
	}
	var resp CommitResponse
	decodeBody(t, rec, &resp)
	if resp.Success {
		t.Error("refused commit must not report success")
	}
}

func TestEditValidation(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	rec := doRequest(t, mux, "POST", "/record/99", testSession, EditRequest{Field: types.FieldDescription, Value: "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown record should be 404, got %d", rec.Code)
	}
	rec = doRequest(t, mux, "POST", "/record/1", testSession, EditRequest{Field: "ATT Weight", Value: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field should be 400, got %d", rec.Code)
	}
	rec = doRequest(t, mux, "POST", "/record/nope", testSession, EditRequest{Field: types.FieldDescription, Value: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id should be 400, got %d", rec.Code)
	}
	rec = doRequest(t, mux, "GET", "/record/99", testSession, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("opening an unknown record should be 404, got %d", rec.Code)
	}
}

func TestResetEndpoint(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	doRequest(t, mux, "POST", "/record/1", testSession, EditRequest{Field: types.FieldDescription, Value: "Other"})
	doRequest(t, mux, "POST", "/record/2", testSession, EditRequest{Field: types.FieldPrice, Value: "99"})

	rec := doRequest(t, mux, "POST", "/reset", testSession, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset failed with %d: %q", rec.Code, rec.Body.String())
	}
	var resp ResetResponse
	decodeBody(t, rec, &resp)
	if resp.Dropped != 2 {
		t.Errorf("reset should report 2 dropped edits, got %d", resp.Dropped)
	}

	rec = doRequest(t, mux, "GET", "/record/1", testSession, nil)
	var detail edit.RecordDetail
	decodeBody(t, rec, &detail)
	if detail.Description != "Pine plank" {
		t.Errorf("value not restored: %q", detail.Description)
	}
}

func TestExportIncludesPending(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	doRequest(t, mux, "POST", "/record/1", testSession, EditRequest{Field: types.FieldDescription, Value: "Pine plank, planed"})

	rec := doRequest(t, mux, "GET", "/export", testSession, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export failed with %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("wrong content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "grid.csv") {
		t.Errorf("wrong disposition %q", cd)
	}
	data, err := catalog.ParseGrid(rec.Body)
	if err != nil {
		t.Fatalf("exported grid does not parse: %v", err)
	}
	if len(data.Records) != 4 {
		t.Fatalf("export lost records: %d", len(data.Records))
	}
	if data.Records[0].Description != "Pine plank, planed" {
		t.Errorf("export should carry pending edits, got %q", data.Records[0].Description)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()
	other := "4cfb0790-4d27-4aca-a302-e5e2e4f7c527"

	doRequest(t, mux, "POST", "/record/1", testSession, EditRequest{Field: types.FieldDescription, Value: "Mine"})

	rec := doRequest(t, mux, "GET", "/record/1", other, nil)
	var detail edit.RecordDetail
	decodeBody(t, rec, &detail)
	if detail.Description != "Pine plank" {
		t.Errorf("foreign edit leaked: %q", detail.Description)
	}
	rec = doRequest(t, mux, "GET", "/grid", other, nil)
	var page edit.GridPage
	decodeBody(t, rec, &page)
	if page.Pending != 0 {
		t.Errorf("foreign pending count leaked: %d", page.Pending)
	}
}

func TestMissingCookieStartsSession(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	req := httptest.NewRequest("GET", "/grid", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	var sid string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			sid = c.Value
		}
	}
	if sid == "" {
		t.Fatal("no session cookie issued")
	}
	if err := uuid.Validate(sid); err != nil {
		t.Errorf("session id is not a uuid: %q", sid)
	}
}

func TestOptionsPreflight(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	req := httptest.NewRequest("OPTIONS", "/grid", nil)
	req.Header.Set("Origin", "http://grid.local")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("got status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://grid.local" {
		t.Errorf("origin not echoed: %q", got)
	}
}

func TestHeartbeat(t *testing.T) {
	ws := &WebServer{Liveness: NewLiveness()}
	before := ws.Liveness.lastBeat.Load()

	rec := httptest.NewRecorder()
	ws.Heartbeat(rec, httptest.NewRequest("POST", "/heartbeat", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("got status %d", rec.Code)
	}
	if ws.Liveness.lastBeat.Load() < before {
		t.Error("heartbeat should move the last beat forward")
	}

	// must not panic without a watcher
	bare := &WebServer{}
	bare.Heartbeat(httptest.NewRecorder(), httptest.NewRequest("POST", "/heartbeat", nil))
}

func TestHealth(t *testing.T) {
	ws, _ := newTestServer(t)
	mux := ws.ClientHandler()

	rec := doRequest(t, mux, "GET", "/health", testSession, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}
