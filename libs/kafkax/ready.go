package kafkax

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck dials the first broker. It returns nil when no brokers are configured so
// that the outbox can run in store-only mode.
func ReadyCheck(brokers string) func(context.Context) error {
	list := SplitBrokers(brokers)
	if len(list) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", list[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}
}
