package websocket

import "errors"

var (
	ErrClientQueueFull = errors.New("client message queue is full")
	ErrClientClosed    = errors.New("client is closed")
	ErrInvalidMessage  = errors.New("invalid message format")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrRateLimited     = errors.New("rate limit exceeded")
)
