package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/matst80/slask-grid/pkg/types"
)

type fcmSender struct {
	client *messaging.Client
}

// newFcmSender builds the firebase messaging client once at boot. Credentials
// come from GOOGLE_APPLICATION_CREDENTIALS or the ambient service account.
func newFcmSender(ctx context.Context) (*fcmSender, error) {
	var app *firebase.App
	var err error
	if credentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credentials != "" {
		app, err = firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentials))
	} else {
		app, err = firebase.NewApp(ctx, nil)
	}
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &fcmSender{client: client}, nil
}

func (s *fcmSender) send(ctx context.Context, token string, notification *messaging.Notification, data map[string]string) error {
	response, err := s.client.Send(ctx, &messaging.Message{
		Notification: notification,
		Data:         data,
		Token:        token,
	})
	if err != nil {
		return err
	}
	log.Printf("Sent push message %s", response)
	return nil
}

func (s *fcmSender) sendWatchConfirmation(ctx context.Context, token string, id types.RecordId) error {
	return s.send(ctx, token, &messaging.Notification{
		Title: "Price watch active",
		Body:  fmt.Sprintf("You will be notified when the price of record %d drops.", id),
	}, map[string]string{
		"recordId": strconv.Itoa(int(id)),
		"type":     "watch-confirmed",
	})
}

func (s *fcmSender) sendPriceDrop(ctx context.Context, token string, change types.PriceChange) error {
	return s.send(ctx, token, &messaging.Notification{
		Title: fmt.Sprintf("Price drop on %s", change.Description),
		Body:  fmt.Sprintf("Now %s, down from %s", change.NewPrice, change.OldPrice),
	}, map[string]string{
		"recordId": strconv.Itoa(int(change.Id)),
		"type":     "price-drop",
		"oldPrice": change.OldPrice,
		"newPrice": change.NewPrice,
	})
}
