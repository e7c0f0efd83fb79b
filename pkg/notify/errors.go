package notify

import "errors"

var (
	ErrEmptyURL      = errors.New("nats url is empty")
	ErrConnectFailed = errors.New("failed to connect to nats")
	ErrNilPublisher  = errors.New("publisher is nil")
	ErrPublish       = errors.New("failed to publish transition event")
)
