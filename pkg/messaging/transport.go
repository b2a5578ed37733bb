package messaging

import (
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/matst80/slask-grid/pkg/types"
)

type RabbitConfig struct {
	Url    string
	VHost  string
	Prefix string
}

func Dial(cfg RabbitConfig) (*amqp.Connection, error) {
	return amqp.DialConfig(cfg.Url, amqp.Config{
		Vhost:      cfg.VHost,
		Properties: amqp.NewConnectionProperties(),
	})
}

// RabbitTransport broadcasts accepted grid mutations so replicas and
// watchers can follow along. It plugs in as the store's change handler.
type RabbitTransport struct {
	cfg  RabbitConfig
	conn *amqp.Connection
}

func NewRabbitTransport(cfg RabbitConfig) (*RabbitTransport, error) {
	conn, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	for _, topic := range []ChangeTopic{CommitTopic, ReplaceTopic, PriceDropTopic} {
		if err := DefineTopic(ch, cfg.Prefix, topic); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &RabbitTransport{cfg: cfg, conn: conn}, nil
}

func (t *RabbitTransport) Close() error {
	return t.conn.Close()
}

func (t *RabbitTransport) GridCommitted(changes []types.ChangeTuple) {
	if err := SendChange(t.conn, t.cfg.Prefix, CommitTopic, changes); err != nil {
		log.Printf("Error sending commit event: %v", err)
	}
}

func (t *RabbitTransport) GridReplaced(generation uint64) {
	if err := SendChange(t.conn, t.cfg.Prefix, ReplaceTopic, generation); err != nil {
		log.Printf("Error sending replace event: %v", err)
	}
}

func (t *RabbitTransport) PricesLowered(changes []types.PriceChange) {
	if err := SendChange(t.conn, t.cfg.Prefix, PriceDropTopic, changes); err != nil {
		log.Printf("Error sending price drop event: %v", err)
	}
}
