package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/text/language"

	"github.com/matst80/slask-grid/pkg/common"
	"github.com/matst80/slask-grid/pkg/edit"
	"github.com/matst80/slask-grid/pkg/master"
	"github.com/matst80/slask-grid/pkg/messaging"
	"github.com/matst80/slask-grid/pkg/server"
	"github.com/matst80/slask-grid/pkg/sorting"
	"github.com/matst80/slask-grid/pkg/storage"
	"github.com/matst80/slask-grid/pkg/tracking"
	"github.com/matst80/slask-grid/pkg/types"
)

var enableProfiling = flag.Bool("profiling", true, "enable profiling endpoints")
var watchHeartbeat = flag.Bool("heartbeat-watch", false, "shut down when the host stops pinging /heartbeat")
var rabbitUrl = os.Getenv("RABBIT_URL")
var rabbitVHost = os.Getenv("RABBIT_HOST")
var topicPrefix = os.Getenv("RABBIT_PREFIX")
var redisUrl = os.Getenv("REDIS_URL")
var redisPassword = os.Getenv("REDIS_PASSWORD")
var firestoreProject = os.Getenv("FIRESTORE_PROJECT")
var clientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
var callbackUrl = os.Getenv("CALLBACK_URL")
var passkeyDomain = os.Getenv("PASSKEY_DOMAIN")
var passkeyOrigin = os.Getenv("PASSKEY_ORIGIN")
var seedFile = os.Getenv("GRID_FILE")
var dataFolder = os.Getenv("DATA_FOLDER")
var listenAddress = ":8080"
var debugAddress = ":8081"

const mirrorProject = "autosave"

var oauthConfig *oauth2.Config

func init() {
	flag.Parse()

	if dataFolder == "" {
		dataFolder = "data"
	}
	if topicPrefix == "" {
		topicPrefix = "grid"
	}

	oauthConfig = &oauth2.Config{
		ClientID:     "873234112809-h7v2l9c41osmqfkv17ju7gg08e570abc.apps.googleusercontent.com",
		ClientSecret: clientSecret,
		RedirectURL:  callbackUrl,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// replaceListener rebuilds every open session when the grid is swapped
// wholesale. Commits do not force other operators off their working copy.
type replaceListener struct {
	sessions *edit.Manager
}

func (l *replaceListener) GridCommitted([]types.ChangeTuple) {}
func (l *replaceListener) GridReplaced(uint64)               { l.sessions.RefreshAll() }
func (l *replaceListener) PricesLowered([]types.PriceChange) {}

// firestoreMirror copies the canonical grid to the autosave project after
// mutations. The queue collapses bursts into one save.
type firestoreMirror struct {
	store *master.Store
	queue *common.QueueHandler[uint64]
}

func newFirestoreMirror(store *master.Store, projects *storage.ProjectStore) *firestoreMirror {
	m := &firestoreMirror{store: store}
	m.queue = common.NewQueueHandler(func(generations []uint64) {
		latest := generations[len(generations)-1]
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := projects.SaveProject(ctx, mirrorProject, m.store.Snapshot()); err != nil {
			log.Printf("Failed to mirror generation %d to firestore: %v", latest, err)
		}
	}, 64)
	return m
}

func (m *firestoreMirror) GridCommitted([]types.ChangeTuple) { m.queue.Add(m.store.Generation()) }
func (m *firestoreMirror) GridReplaced(generation uint64)    { m.queue.Add(generation) }
func (m *firestoreMirror) PricesLowered([]types.PriceChange) {}

func seedGrid(store *master.Store, filename string) {
	file, err := os.Open(filename)
	if err != nil {
		log.Printf("Unable to read seed grid %s: %v", filename, err)
		return
	}
	defer file.Close()
	if err := store.Replace(file); err != nil {
		log.Printf("Unable to parse seed grid %s: %v", filename, err)
		return
	}
	log.Printf("Seeded %d records from %s", store.Len(), filename)
}

func main() {
	db := storage.NewDiskStorage(dataFolder)
	store := master.NewStore(db)
	if err := store.Load(); err != nil {
		log.Fatalf("Failed to load grid snapshot: %v", err)
	}

	ctx := context.Background()
	var projects *storage.ProjectStore
	if firestoreProject != "" {
		var err error
		projects, err = storage.NewProjectStore(ctx, firestoreProject)
		if err != nil {
			log.Fatalf("Failed to connect to firestore: %v", err)
		}
		if store.Len() == 0 {
			if data, err := projects.LoadProject(ctx, mirrorProject); err == nil {
				if err := store.Install(data); err != nil {
					log.Printf("Failed to install mirrored grid: %v", err)
				} else {
					log.Printf("Restored %d records from firestore", store.Len())
				}
			}
		}
	}
	if store.Len() == 0 && seedFile != "" {
		seedGrid(store, seedFile)
	}
	log.Printf("Serving %d records, generation %d", store.Len(), store.Generation())

	tag := language.Swedish
	if locale := os.Getenv("GRID_LOCALE"); locale != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			log.Fatalf("Invalid GRID_LOCALE %q: %v", locale, err)
		}
		tag = parsed
	}
	sessions := edit.NewManager(store, store, sorting.New(tag))

	srv := &server.WebServer{
		Sessions:    sessions,
		Store:       store,
		Projects:    projects,
		OAuthConfig: oauthConfig,
	}

	if redisUrl != "" {
		srv.Cache = server.NewCache(redisUrl, redisPassword, 0)
		log.Printf("Response cache enabled, url: %s", redisUrl)
	}

	hooks := []common.ShutdownHook{}
	listeners := master.MultiListener{&replaceListener{sessions: sessions}}
	if rabbitUrl != "" {
		transport, err := messaging.NewRabbitTransport(messaging.RabbitConfig{
			Url:    rabbitUrl,
			VHost:  rabbitVHost,
			Prefix: topicPrefix,
		})
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		listeners = append(listeners, transport)
		hooks = append(hooks, func(context.Context) error { return transport.Close() })

		trk, err := tracking.NewRabbitTracking(messaging.RabbitConfig{Url: rabbitUrl, VHost: rabbitVHost})
		if err != nil {
			log.Fatalf("Failed to create rabbit tracking: %v", err)
		}
		srv.Tracking = trk
		hooks = append(hooks, func(context.Context) error { return trk.Close() })
		log.Printf("Change feed and tracking enabled, url: %s", rabbitUrl)
	}
	if projects != nil {
		mirror := newFirestoreMirror(store, projects)
		listeners = append(listeners, mirror)
		hooks = append(hooks, func(context.Context) error {
			mirror.queue.Stop()
			return projects.Close()
		})
	}
	store.ChangeHandler = listeners

	if passkeyDomain != "" {
		if passkeyOrigin == "" {
			passkeyOrigin = "https://" + passkeyDomain
		}
		auth, err := server.NewWebAuthHandler(&webauthn.Config{
			RPDisplayName: "Slask Grid",
			RPID:          passkeyDomain,
			RPOrigins:     []string{passkeyOrigin},
		}, db)
		if err != nil {
			log.Fatalf("Failed to set up passkeys: %v", err)
		}
		srv.Auth = auth
	}

	var quit <-chan struct{}
	if *watchHeartbeat {
		liveness := server.NewLiveness()
		liveness.Watch()
		srv.Liveness = liveness
		quit = liveness.Quit()
		log.Println("Heartbeat watch enabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/admin/", http.StripPrefix("/admin", srv.AdminHandler()))
	mux.Handle("/api/", http.StripPrefix("/api", srv.ClientHandler()))
	mux.HandleFunc("POST /heartbeat", srv.Heartbeat)
	mux.Handle("/images/", http.StripPrefix("/images/", http.FileServer(http.Dir(dataFolder))))

	debugMux := http.NewServeMux()
	debugMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	debugMux.Handle("/metrics", promhttp.Handler())
	if *enableProfiling {
		log.Println("Profiling enabled")
		debugMux.HandleFunc("/debug/pprof/", pprof.Index)
		debugMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		debugMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		debugMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		debugMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	go func() {
		log.Printf("Starting debug server %v", debugAddress)
		log.Fatal(http.ListenAndServe(debugAddress, debugMux))
	}()

	cfg := common.LoadTimeoutConfig(common.TimeoutConfig{
		ReadHeader: 5 * time.Second,
		Read:       30 * time.Second,
		Write:      30 * time.Second,
		Idle:       120 * time.Second,
		Shutdown:   15 * time.Second,
		Hook:       5 * time.Second,
	})
	httpServer := common.NewServerWithTimeouts(&http.Server{Addr: listenAddress, Handler: mux}, cfg)
	common.RunServerUntil(httpServer, "slask-grid api", quit, cfg.Shutdown, cfg.Hook, hooks...)
}
