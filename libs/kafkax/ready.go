package kafkax

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck dials the first broker in the list. A TCP-level dial is enough
// for readiness; topic metadata problems surface in the relay's own logs.
func ReadyCheck(brokers string) func(context.Context) error {
	return func(ctx context.Context) error {
		addrs := SplitBrokers(brokers)
		if len(addrs) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", addrs[0])
		if err != nil {
			return err
		}
		_ = conn.Close()
		return nil
	}
}
