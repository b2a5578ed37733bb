package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/common"
	"github.com/matst80/slask-grid/pkg/server"
	"github.com/matst80/slask-grid/pkg/sorting"
	"github.com/matst80/slask-grid/pkg/tracking"
	"github.com/matst80/slask-grid/pkg/types"
	"golang.org/x/text/language"

	amqp "github.com/rabbitmq/amqp091-go"
)

var masterUrl = os.Getenv("MASTER_URL")
var rabbitUrl = os.Getenv("RABBIT_URL")
var rabbitVHost = os.Getenv("RABBIT_HOST")
var topicPrefix = os.Getenv("RABBIT_PREFIX")
var redisUrl = os.Getenv("REDIS_URL")
var redisPassword = os.Getenv("REDIS_PASSWORD")
var listenAddress = ":8080"

func init() {
	if topicPrefix == "" {
		topicPrefix = "grid"
	}
}

// app is the replica state: a read-only catalog copy that follows the
// master's change feed. rev moves on every applied change so cached
// responses age out on their own.
type app struct {
	mu      sync.RWMutex
	catalog *catalog.Catalog
	rev     uint64
	sorter  *sorting.Sorter
	cache   *server.Cache
	tracker tracking.Tracking
	conn    *amqp.Connection
}

func (a *app) revision() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rev
}

func (a *app) install(data *types.BootstrapData) {
	c := catalog.New(data)
	a.mu.Lock()
	a.catalog = c
	a.rev++
	rev := a.rev
	a.mu.Unlock()
	log.Printf("Installed grid with %d records, revision %d", c.Len(), rev)
}

func main() {
	if masterUrl == "" {
		log.Fatalf("No master url provided")
	}

	app := &app{
		sorter: sorting.New(language.Swedish),
	}

	data, err := fetchSnapshotWithRetry(masterUrl, 5)
	if err != nil {
		log.Fatalf("Failed to fetch snapshot from master: %v", err)
	}
	app.install(data)

	if redisUrl != "" {
		app.cache = server.NewCache(redisUrl, redisPassword, 0)
		log.Printf("Response cache enabled, url: %s", redisUrl)
	}

	hooks := []common.ShutdownHook{}
	if rabbitUrl != "" {
		app.ConnectAmqp(rabbitUrl)
		hooks = append(hooks, func(context.Context) error { return app.conn.Close() })

		trk, err := tracking.NewRabbitTracking(messagingConfig())
		if err != nil {
			log.Printf("Failed to connect to rabbitmq for tracking: %v", err)
		} else {
			app.tracker = trk
			hooks = append(hooks, func(context.Context) error { return trk.Close() })
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/grid", common.JsonHandler(app.tracker, app.GetGrid))
	mux.HandleFunc("GET /api/facets", common.JsonHandler(app.tracker, app.GetFacets))
	mux.HandleFunc("GET /api/record/{id}", common.JsonHandler(app.tracker, app.GetRecord))
	mux.HandleFunc("GET /api/values/{name}", common.JsonHandler(app.tracker, app.GetValues))

	httpServer := &http.Server{Addr: listenAddress, Handler: mux}
	common.RunServerWithShutdown(httpServer, "slask-grid reader", 5*time.Second, 2*time.Second, hooks...)
}
