package notify

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultDialTimeout = 5 * time.Second

// Connect dials a NATS server. The connection is named "metastates" unless
// opts override it. A ctx deadline shortens the dial timeout.
func Connect(ctx context.Context, url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrConnectFailed, err)
	}

	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	defaults := []nats.Option{nats.Name("metastates"), nats.Timeout(timeout)}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, errors.Join(ErrConnectFailed, err)
	}
	return nc, nil
}
