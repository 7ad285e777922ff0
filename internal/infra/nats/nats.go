package natsclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerLink/config"
)

const defaultConnectTimeout = 5 * time.Second

// Connect creates a NATS connection with a JetStream context.
func Connect(cfg config.NATSConfig) (*nats.Conn, nats.JetStreamContext, error) {
	opts := []nats.Option{
		nats.Timeout(defaultConnectTimeout),
		nats.Name("powerlink"),
		nats.MaxReconnects(-1),
	}

	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(URL(cfg), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("nats: init jetstream: %w", err)
	}

	return conn, js, nil
}

// StreamConfig names a stream and the durable pull consumer reading from it.
type StreamConfig struct {
	Stream   string
	Subject  string
	Durable  string
	MaxBytes int64
}

// EnsureStream creates the stream and its durable consumer when missing.
func EnsureStream(js nats.JetStreamManager, sc StreamConfig) error {
	_, err := js.StreamInfo(sc.Stream)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     sc.Stream,
			Subjects: []string{sc.Subject},
			MaxBytes: sc.MaxBytes,
		})
	}
	if err != nil {
		return fmt.Errorf("nats: ensure stream %s: %w", sc.Stream, err)
	}

	_, err = js.ConsumerInfo(sc.Stream, sc.Durable)
	if errors.Is(err, nats.ErrConsumerNotFound) {
		_, err = js.AddConsumer(sc.Stream, &nats.ConsumerConfig{
			Durable:       sc.Durable,
			AckPolicy:     nats.AckExplicitPolicy,
			FilterSubject: sc.Subject,
		})
	}
	if err != nil {
		return fmt.Errorf("nats: ensure consumer %s: %w", sc.Durable, err)
	}

	return nil
}

// URL renders the server address, defaulting to localhost:4222.
func URL(cfg config.NATSConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 4222
	}
	return fmt.Sprintf("nats://%s:%d", host, port)
}
