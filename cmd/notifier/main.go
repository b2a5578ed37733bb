package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/matst80/slask-grid/pkg/common"
	"github.com/matst80/slask-grid/pkg/messaging"
	"github.com/matst80/slask-grid/pkg/storage"
	"github.com/matst80/slask-grid/pkg/types"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	rabbitUrl   = os.Getenv("RABBIT_URL")
	rabbitVHost = os.Getenv("RABBIT_HOST")
	topicPrefix = os.Getenv("RABBIT_PREFIX")
	dataFolder  = os.Getenv("DATA_FOLDER")
)

func init() {
	if topicPrefix == "" {
		topicPrefix = "grid"
	}
	if dataFolder == "" {
		dataFolder = "data"
	}
}

func main() {
	if rabbitUrl == "" {
		log.Fatal("No rabbitmq url provided")
	}

	sender, err := newFcmSender(context.Background())
	if err != nil {
		log.Fatalf("Could not set up firebase messaging: %v", err)
	}
	watches := NewWatchList(storage.NewDiskStorage(dataFolder), sender)

	conn, err := messaging.Dial(messaging.RabbitConfig{Url: rabbitUrl, VHost: rabbitVHost, Prefix: topicPrefix})
	if err != nil {
		log.Fatalf("Failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Failed to open a channel: %v", err)
	}
	err = messaging.ListenToTopic(ch, topicPrefix, messaging.PriceDropTopic, func(d amqp.Delivery) error {
		var changes []types.PriceChange
		if err := json.Unmarshal(d.Body, &changes); err != nil {
			log.Printf("Could not unmarshal price drop message: %v", err)
			return nil
		}
		log.Printf("Got %d lowered prices", len(changes))
		watches.NotifyLowered(changes)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to start listening to topic: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /push/watch/{id}", watches.WatchPriceDrop)
	mux.HandleFunc("DELETE /push/watch/{id}", watches.UnwatchPriceDrop)

	cfg := common.LoadTimeoutConfig(common.TimeoutConfig{
		ReadHeader: 5 * time.Second,
		Read:       15 * time.Second,
		Write:      30 * time.Second,
		Idle:       60 * time.Second,
		Shutdown:   20 * time.Second,
		Hook:       5 * time.Second,
	})
	server := common.NewServerWithTimeouts(&http.Server{Addr: ":8080", Handler: mux}, cfg)
	common.RunServerWithShutdown(server, "slask-grid notifier", cfg.Shutdown, cfg.Hook)
}
