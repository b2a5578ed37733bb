package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/matst80/slask-grid/pkg/types"
)

const watchesFile = "price_watches.json"

type pushSender interface {
	sendWatchConfirmation(ctx context.Context, token string, id types.RecordId) error
	sendPriceDrop(ctx context.Context, token string, change types.PriceChange) error
}

type WatchRequest struct {
	Token string `json:"token"`
}

type PriceWatch struct {
	Id        types.RecordId `json:"id"`
	Token     string         `json:"token"`
	CreatedAt time.Time      `json:"createdAt"`
}

// WatchList is the persisted set of push subscriptions, one entry per
// (record, token) pair.
type WatchList struct {
	mu      sync.RWMutex
	storage types.StorageProvider
	sender  pushSender
	Watches []PriceWatch `json:"watches"`
}

func NewWatchList(storage types.StorageProvider, sender pushSender) *WatchList {
	l := &WatchList{
		storage: storage,
		sender:  sender,
		Watches: []PriceWatch{},
	}
	if err := storage.LoadJson(l, watchesFile); err != nil {
		if os.IsNotExist(err) {
			log.Printf("No stored price watches, starting empty")
		} else {
			log.Printf("Could not load price watches: %v", err)
		}
	} else {
		log.Printf("Loaded %d price watches", len(l.Watches))
	}
	return l
}

func (l *WatchList) WatchPriceDrop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid record id", http.StatusBadRequest)
		return
	}
	var req WatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "Subscription token is required", http.StatusBadRequest)
		return
	}
	watch := PriceWatch{Id: types.RecordId(id), Token: req.Token, CreatedAt: time.Now()}

	l.mu.Lock()
	replaced := false
	for i, existing := range l.Watches {
		if existing.Id == watch.Id && existing.Token == watch.Token {
			l.Watches[i] = watch
			replaced = true
			break
		}
	}
	if !replaced {
		l.Watches = append(l.Watches, watch)
	}
	err = l.storage.SaveJson(l, watchesFile)
	l.mu.Unlock()
	if err != nil {
		log.Printf("Could not save price watches: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := l.sender.sendWatchConfirmation(r.Context(), watch.Token, watch.Id); err != nil {
		log.Printf("Could not send confirmation push: %v", err)
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":   "success",
		"recordId": strconv.Itoa(id),
	})
}

func (l *WatchList) UnwatchPriceDrop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid record id", http.StatusBadRequest)
		return
	}
	var req WatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "Subscription token is required", http.StatusBadRequest)
		return
	}

	l.mu.Lock()
	kept := l.Watches[:0]
	for _, existing := range l.Watches {
		if existing.Id == types.RecordId(id) && existing.Token == req.Token {
			continue
		}
		kept = append(kept, existing)
	}
	dropped := len(l.Watches) - len(kept)
	l.Watches = kept
	if dropped > 0 {
		err = l.storage.SaveJson(l, watchesFile)
	}
	l.mu.Unlock()
	if err != nil {
		log.Printf("Could not save price watches: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int{"dropped": dropped})
}

// NotifyLowered pushes one message per watch matching a lowered record. Sends
// run outside the lock, a slow push must not block registrations.
func (l *WatchList) NotifyLowered(changes []types.PriceChange) {
	l.mu.RLock()
	watches := make([]PriceWatch, len(l.Watches))
	copy(watches, l.Watches)
	l.mu.RUnlock()

	for _, change := range changes {
		for _, watch := range watches {
			if watch.Id != change.Id {
				continue
			}
			if err := l.sender.sendPriceDrop(context.Background(), watch.Token, change); err != nil {
				log.Printf("Failed to push price drop for record %d: %v", change.Id, err)
			}
		}
	}
}
