package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/schema"
	"github.com/matst80/slask-grid/pkg/types"
)

type GridRequest struct {
	Page     int    `json:"page" schema:"page"`
	PageSize int    `json:"pageSize" schema:"size,default:50"`
	Sort     string `json:"sort" schema:"sort"`
	Dir      string `json:"dir" schema:"dir"`
}

func makeBaseGridRequest() *GridRequest {
	return &GridRequest{
		Page:     0,
		PageSize: 50,
	}
}

func GridQueryFromRequest(r *http.Request, gr *GridRequest) error {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return decoder.Decode(gr, r.URL.Query())
}

// DecodeFiltersFromQuery reads repeated f=Group:token||token parameters into
// the filter set. Malformed values and unknown groups are skipped so a stale
// link never breaks the page.
func DecodeFiltersFromQuery(query url.Values, f *types.Filters) {
	for _, v := range query["f"] {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) != 2 {
			continue
		}
		var tokens []string
		if parts[1] != "" {
			tokens = strings.Split(parts[1], "||")
		}
		f.Apply(parts[0], tokens)
	}
}
