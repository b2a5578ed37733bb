package tracking

import (
	"log"
	"net/http"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/matst80/slask-grid/pkg/messaging"
	"github.com/matst80/slask-grid/pkg/types"
)

type RabbitTracking struct {
	connection *amqp.Connection
}

const trackingTopic = "tracking"

func NewRabbitTracking(cfg messaging.RabbitConfig) (*RabbitTracking, error) {
	ret := RabbitTracking{
		connection: nil,
	}
	err := ret.connect(cfg)
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (t *RabbitTracking) connect(cfg messaging.RabbitConfig) error {
	conn, err := messaging.Dial(cfg)
	if err != nil {
		return err
	}
	t.connection = conn
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	return messaging.DefineTopic(ch, "global", trackingTopic)
}

func (t *RabbitTracking) Close() error {
	return t.connection.Close()
}

func (t *RabbitTracking) send(data any) error {
	return messaging.SendChange(t.connection, "global", trackingTopic, data)
}

func (rt *RabbitTracking) TrackSession(sessionId string, r *http.Request) {
	ip := r.Header.Get("X-Real-Ip")
	if ip == "" {
		ip = r.Header.Get("X-Forwarded-For")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}

	err := rt.send(SessionEvent{
		BaseEvent:    &BaseEvent{Event: 0, SessionId: sessionId},
		Language:     r.Header.Get("Accept-Language"),
		UserAgent:    r.UserAgent(),
		Ip:           ip,
		PragmaHeader: r.Header.Get("Pragma"),
	})
	if err != nil {
		log.Println("Error sending session event: ", err)
	}
}

func (rt *RabbitTracking) TrackFilter(sessionId string, name string, tokens []string, results int) {
	err := rt.send(&FilterEvent{
		BaseEvent:       &BaseEvent{Event: 1, SessionId: sessionId},
		Name:            name,
		Tokens:          tokens,
		NumberOfResults: results,
	})
	if err != nil {
		log.Println("Error sending filter event: ", err)
	}
}

func (rt *RabbitTracking) TrackSort(sessionId string, field string, direction string) {
	err := rt.send(&SortEvent{
		BaseEvent: &BaseEvent{Event: 2, SessionId: sessionId},
		Field:     field,
		Direction: direction,
	})
	if err != nil {
		log.Println("Error sending sort event: ", err)
	}
}

func (rt *RabbitTracking) TrackEdit(sessionId string, record types.RecordId, field string) {
	err := rt.send(&EditEvent{
		BaseEvent: &BaseEvent{Event: 3, SessionId: sessionId},
		Record:    record,
		Field:     field,
	})
	if err != nil {
		log.Println("Error sending edit event: ", err)
	}
}

func (rt *RabbitTracking) TrackCommit(sessionId string, changes int) {
	err := rt.send(&CommitEvent{
		BaseEvent: &BaseEvent{Event: 4, SessionId: sessionId},
		Changes:   changes,
	})
	if err != nil {
		log.Println("Error sending commit event: ", err)
	}
}

func (rt *RabbitTracking) TrackReset(sessionId string, dropped int) {
	err := rt.send(&ResetEvent{
		BaseEvent: &BaseEvent{Event: 5, SessionId: sessionId},
		Dropped:   dropped,
	})
	if err != nil {
		log.Println("Error sending reset event: ", err)
	}
}

func (rt *RabbitTracking) TrackReplace(sessionId string, records int) {
	err := rt.send(&ReplaceEvent{
		BaseEvent: &BaseEvent{Event: 6, SessionId: sessionId},
		Records:   records,
	})
	if err != nil {
		log.Println("Error sending replace event: ", err)
	}
}
