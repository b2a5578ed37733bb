package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/common"
	"github.com/matst80/slask-grid/pkg/edit"
	"github.com/matst80/slask-grid/pkg/master"
	"github.com/matst80/slask-grid/pkg/sorting"
	"github.com/matst80/slask-grid/pkg/storage"
	"github.com/matst80/slask-grid/pkg/tracking"
	"github.com/matst80/slask-grid/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/oauth2"
)

var (
	noGridRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskgrid_grid_requests_total",
		Help: "The total number of grid page requests",
	})
	noFacetRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskgrid_facet_requests_total",
		Help: "The total number of facet requests",
	})
	noEdits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskgrid_edits_total",
		Help: "The total number of field edits",
	})
	noCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskgrid_commits_total",
		Help: "The total number of successful commits",
	})
	noFailedCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskgrid_commits_failed_total",
		Help: "The total number of refused or failed commits",
	})
)

type WebServer struct {
	Sessions    *edit.Manager
	Store       *master.Store
	Projects    *storage.ProjectStore
	Auth        *WebAuthHandler
	Cache       *Cache
	Tracking    tracking.Tracking
	Liveness    *Liveness
	OAuthConfig *oauth2.Config
}

func defaultHeaders(w http.ResponseWriter, r *http.Request, isJson bool, cacheTime string) {
	w.Header().Set("Cache-Control", "private, stale-while-revalidate="+cacheTime)
	genericHeaders(w, r, isJson)
}

func genericHeaders(w http.ResponseWriter, r *http.Request, isJson bool) {
	if isJson {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	}
	origin := r.Header.Get("Origin")
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Age", "0")
}

func publicHeaders(w http.ResponseWriter, r *http.Request, isJson bool, cacheTime string) {
	w.Header().Set("Cache-Control", "public, max-age="+cacheTime)
	genericHeaders(w, r, isJson)
}

// isValidationError tells a refused change apart from a broken backend, the
// former is the operator's to fix.
func isValidationError(err error) bool {
	return errors.Is(err, edit.ErrInvalidPrice) ||
		errors.Is(err, edit.ErrNoPendingChanges) ||
		errors.Is(err, catalog.ErrUnknownField) ||
		errors.Is(err, catalog.ErrUnknownRecord)
}

func (ws *WebServer) GetGrid(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	go noGridRequests.Inc()
	go activeSessions.Set(float64(ws.Sessions.Len()))
	gr := makeBaseGridRequest()
	if err := GridQueryFromRequest(r, gr); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	session := ws.Sessions.GetOrCreate(sessionId)

	key := fmt.Sprintf("grid:%s:%d:%d:%d", sessionId, session.Rev(), gr.Page, gr.PageSize)
	if ws.Cache != nil {
		if data, ok := ws.Cache.GetRaw(key); ok {
			defaultHeaders(w, r, true, "10")
			w.WriteHeader(http.StatusOK)
			_, err := w.Write(data)
			return err
		}
	}

	page := session.Grid(gr.Page, gr.PageSize)
	defaultHeaders(w, r, true, "10")
	w.WriteHeader(http.StatusOK)

	writer := io.Writer(w)
	var cw *cacheWriter
	if ws.Cache != nil {
		cw = newCacheWriter(ws.Cache, key, time.Minute)
		writer = io.MultiWriter(w, cw)
	}
	err := json.NewEncoder(writer).Encode(page)
	if err == nil && cw != nil {
		cw.Flush()
	}
	return err
}

func (ws *WebServer) GetFacets(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	go noFacetRequests.Inc()
	session := ws.Sessions.GetOrCreate(sessionId)

	key := fmt.Sprintf("facets:%s:%d", sessionId, session.Rev())
	if ws.Cache != nil {
		if data, ok := ws.Cache.GetRaw(key); ok {
			defaultHeaders(w, r, true, "10")
			w.WriteHeader(http.StatusOK)
			_, err := w.Write(data)
			return err
		}
	}

	groups := session.Facets()
	defaultHeaders(w, r, true, "10")
	w.WriteHeader(http.StatusOK)

	writer := io.Writer(w)
	var cw *cacheWriter
	if ws.Cache != nil {
		cw = newCacheWriter(ws.Cache, key, time.Minute)
		writer = io.MultiWriter(w, cw)
	}
	err := json.NewEncoder(writer).Encode(groups)
	if err == nil && cw != nil {
		cw.Flush()
	}
	return err
}

type FilterRequest struct {
	Name   string   `json:"name"`
	Tokens []string `json:"tokens"`
}

type FilterResponse struct {
	Total  int               `json:"total"`
	Facets []edit.FacetGroup `json:"facets"`
}

func (ws *WebServer) SetFilter(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	req := FilterRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	session := ws.Sessions.GetOrCreate(sessionId)
	if err := session.SetFilter(req.Name, req.Tokens); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	groups := session.Facets()
	total := session.Grid(0, 1).Total
	if ws.Tracking != nil {
		go ws.Tracking.TrackFilter(sessionId, req.Name, req.Tokens, total)
	}
	defaultHeaders(w, r, true, "0")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(FilterResponse{Total: total, Facets: groups})
}

type SortRequest struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

func (ws *WebServer) SetSort(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	req := SortRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	session := ws.Sessions.GetOrCreate(sessionId)
	dir := sorting.ParseDirection(req.Direction)
	if err := session.SetSort(req.Field, dir); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	if ws.Tracking != nil {
		go ws.Tracking.TrackSort(sessionId, req.Field, string(dir))
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func recordIdFromPath(r *http.Request) (types.RecordId, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return 0, err
	}
	return types.RecordId(id), nil
}

func (ws *WebServer) GetRecord(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	id, err := recordIdFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	session := ws.Sessions.GetOrCreate(sessionId)
	detail, err := session.OpenRecord(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return err
	}
	defaultHeaders(w, r, true, "0")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(detail)
}

type EditRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type EditResponse struct {
	Pending int                `json:"pending"`
	Record  *edit.RecordDetail `json:"record"`
}

func (ws *WebServer) EditRecord(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	id, err := recordIdFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	req := EditRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	session := ws.Sessions.GetOrCreate(sessionId)
	if err := session.EditField(id, req.Field, req.Value); err != nil {
		if errors.Is(err, catalog.ErrUnknownRecord) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return err
	}
	go noEdits.Inc()
	if ws.Tracking != nil {
		go ws.Tracking.TrackEdit(sessionId, id, req.Field)
	}
	detail, err := session.OpenRecord(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return err
	}
	defaultHeaders(w, r, true, "0")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(EditResponse{Pending: session.ChangeCount(), Record: detail})
}

type CommitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Changes int    `json:"changes,omitempty"`
}

func (ws *WebServer) Commit(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	session := ws.Sessions.GetOrCreate(sessionId)
	count, err := session.Commit(r.Context())
	if err != nil {
		go noFailedCommits.Inc()
		status := http.StatusBadGateway
		if isValidationError(err) {
			status = http.StatusBadRequest
		}
		defaultHeaders(w, r, true, "0")
		w.WriteHeader(status)
		return enc.Encode(CommitResponse{Success: false, Message: err.Error()})
	}
	go noCommits.Inc()
	if ws.Tracking != nil {
		go ws.Tracking.TrackCommit(sessionId, count)
	}
	defaultHeaders(w, r, true, "0")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(CommitResponse{Success: true, Message: fmt.Sprintf("stored %d changes", count), Changes: count})
}

type ResetResponse struct {
	Dropped int `json:"dropped"`
}

func (ws *WebServer) Reset(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	session := ws.Sessions.GetOrCreate(sessionId)
	dropped := session.ChangeCount()
	if err := session.Reset(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return err
	}
	if ws.Tracking != nil {
		go ws.Tracking.TrackReset(sessionId, dropped)
	}
	defaultHeaders(w, r, true, "0")
	w.WriteHeader(http.StatusOK)
	return enc.Encode(ResetResponse{Dropped: dropped})
}

// Export streams the session's working grid, pending edits included, in the
// upload format.
func (ws *WebServer) Export(w http.ResponseWriter, r *http.Request) {
	sessionId := common.HandleSessionCookie(ws.Tracking, w, r)
	session := ws.Sessions.GetOrCreate(sessionId)
	w.Header().Set("Content-Type", "text/csv; charset=UTF-8")
	w.Header().Set("Content-Disposition", `attachment; filename="grid.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := session.Export(w); err != nil {
		log.Printf("Error exporting grid: %v", err)
	}
}

// Heartbeat is the host's liveness ping. It never touches session state.
func (ws *WebServer) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if ws.Liveness != nil {
		ws.Liveness.Beat()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ws *WebServer) ClientHandler() *http.ServeMux {

	srv := http.NewServeMux()

	srv.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		defaultHeaders(w, r, false, "0")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv.HandleFunc("/grid", common.JsonHandler(ws.Tracking, ws.GetGrid))
	srv.HandleFunc("/facets", common.JsonHandler(ws.Tracking, ws.GetFacets))
	srv.HandleFunc("/filter", common.JsonHandler(ws.Tracking, ws.SetFilter))
	srv.HandleFunc("/sort", common.JsonHandler(ws.Tracking, ws.SetSort))
	srv.HandleFunc("GET /record/{id}", common.JsonHandler(ws.Tracking, ws.GetRecord))
	srv.HandleFunc("POST /record/{id}", common.JsonHandler(ws.Tracking, ws.EditRecord))
	srv.HandleFunc("/commit", common.JsonHandler(ws.Tracking, ws.Commit))
	srv.HandleFunc("/reset", common.JsonHandler(ws.Tracking, ws.Reset))
	srv.HandleFunc("GET /export", ws.Export)

	return srv
}
