package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/server"
	"github.com/matst80/slask-grid/pkg/sorting"
	"github.com/matst80/slask-grid/pkg/types"
)

// respond writes the encoded body to the client and the cache in one pass.
// Callers hold the read lock while the body is encoded, the change feed
// mutates records in place.
func (a *app) respond(w http.ResponseWriter, key string, body any) error {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	if a.cache == nil {
		return json.NewEncoder(w).Encode(body)
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(io.MultiWriter(w, buf)).Encode(body); err != nil {
		return err
	}
	a.cache.SetRaw(key, buf.Bytes(), time.Minute)
	return nil
}

func (a *app) serveCached(w http.ResponseWriter, key string) bool {
	if a.cache == nil {
		return false
	}
	data, ok := a.cache.GetRaw(key)
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
	return true
}

func (a *app) GetGrid(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	gr := &server.GridRequest{PageSize: 50}
	if err := server.GridQueryFromRequest(r, gr); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	if gr.PageSize <= 0 {
		gr.PageSize = 50
	}
	if gr.Page < 0 {
		gr.Page = 0
	}

	key := fmt.Sprintf("reader:grid:%d:%s", a.revision(), r.URL.RawQuery)
	if a.serveCached(w, key) {
		return nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	filters := types.NewFilters(a.catalog.Registry)
	server.DecodeFiltersFromQuery(r.URL.Query(), filters)
	visible := a.catalog.Visible(filters)
	if gr.Sort != "" {
		a.sorter.Sort(visible, gr.Sort, sorting.ParseDirection(gr.Dir))
	}
	total := len(visible)
	start := min(gr.Page*gr.PageSize, total)
	end := min(start+gr.PageSize, total)

	return a.respond(w, key, GridResponse{
		Records:  visible[start:end],
		Total:    total,
		Page:     gr.Page,
		PageSize: gr.PageSize,
	})
}

func (a *app) GetFacets(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	key := fmt.Sprintf("reader:facets:%d:%s", a.revision(), r.URL.RawQuery)
	if a.serveCached(w, key) {
		return nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	filters := types.NewFilters(a.catalog.Registry)
	server.DecodeFiltersFromQuery(r.URL.Query(), filters)
	av := a.catalog.Availability(a.catalog.Match(filters))

	return a.respond(w, key, av)
}

func (a *app) GetRecord(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.catalog.Get(types.RecordId(id))
	if !ok {
		http.Error(w, catalog.ErrUnknownRecord.Error(), http.StatusNotFound)
		return nil
	}
	w.WriteHeader(http.StatusOK)
	return enc.Encode(rec)
}

// GetValues reports the live per-value counts for one attribute, including
// values introduced by commits after the initial load.
func (a *app) GetValues(w http.ResponseWriter, r *http.Request, sessionId string, enc *json.Encoder) error {
	name := r.PathValue("name")

	a.mu.RLock()
	defer a.mu.RUnlock()
	filters := types.NewFilters(a.catalog.Registry)
	server.DecodeFiltersFromQuery(r.URL.Query(), filters)
	counts, ok := a.catalog.LiveCounts(name, a.catalog.Match(filters))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return nil
	}
	w.WriteHeader(http.StatusOK)
	return enc.Encode(counts)
}
