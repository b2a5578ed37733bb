package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/matst80/slask-grid/pkg/catalog"
	"github.com/matst80/slask-grid/pkg/messaging"
	"github.com/matst80/slask-grid/pkg/types"

	amqp "github.com/rabbitmq/amqp091-go"
)

const apiKey = "Basic Z3JpZGFwaTptYXN0ZXJncmlkZGVyMjAwMA=="

func messagingConfig() messaging.RabbitConfig {
	return messaging.RabbitConfig{
		Url:    rabbitUrl,
		VHost:  rabbitVHost,
		Prefix: topicPrefix,
	}
}

func fetchSnapshot(masterUrl string) (*types.BootstrapData, error) {
	req, err := http.NewRequest("GET", masterUrl+"/admin/export", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", apiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("master returned %s", resp.Status)
	}
	return catalog.ParseGrid(resp.Body)
}

func fetchSnapshotWithRetry(masterUrl string, attempts int) (*types.BootstrapData, error) {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var data *types.BootstrapData
		data, err = fetchSnapshot(masterUrl)
		if err == nil {
			return data, nil
		}
		log.Printf("Snapshot fetch failed (attempt %d): %v", attempt, err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return nil, err
}

// applyChanges follows a committed batch. A tuple that does not apply means
// the replica missed a replace, a full reload fixes that.
func (a *app) applyChanges(changes []types.ChangeTuple) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ch := range changes {
		value := ch.Value
		if ch.Field == types.FieldPrice {
			value = catalog.NormalizePrice(value)
		}
		if err := a.catalog.SetField(ch.Id, ch.Field, value); err != nil {
			log.Printf("Change for record %d does not apply, scheduling reload: %v", ch.Id, err)
			go a.reload()
			return
		}
	}
	a.rev++
	log.Printf("Applied %d changes, revision %d", len(changes), a.rev)
}

func (a *app) reload() {
	data, err := fetchSnapshotWithRetry(masterUrl, 5)
	if err != nil {
		log.Printf("Giving up on snapshot reload, serving revision %d: %v", a.revision(), err)
		return
	}
	a.install(data)
}

func (a *app) ConnectAmqp(amqpUrl string) {
	conn, err := messaging.Dial(messagingConfig())
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	a.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Failed to open a channel: %v", err)
	}
	err = messaging.ListenToTopic(ch, topicPrefix, messaging.CommitTopic, func(d amqp.Delivery) error {
		var changes []types.ChangeTuple
		if err := json.Unmarshal(d.Body, &changes); err != nil {
			log.Printf("Failed to unmarshal commit message: %v", err)
			return nil
		}
		a.applyChanges(changes)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to listen to commit topic: %v", err)
	}

	replaceCh, err := conn.Channel()
	if err != nil {
		log.Fatalf("Failed to open a channel: %v", err)
	}
	err = messaging.ListenToTopic(replaceCh, topicPrefix, messaging.ReplaceTopic, func(d amqp.Delivery) error {
		var generation uint64
		if err := json.Unmarshal(d.Body, &generation); err != nil {
			log.Printf("Failed to unmarshal replace message: %v", err)
			return nil
		}
		log.Printf("Grid replaced at generation %d, reloading", generation)
		a.reload()
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to listen to replace topic: %v", err)
	}

	log.Printf("Following the master change feed")
}
