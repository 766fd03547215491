package mqtt

import "errors"

var (
	// ErrNotConnected is returned when an operation needs a live broker connection.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrBufferFull is returned when the disconnected buffer rejects a message.
	ErrBufferFull = errors.New("mqtt: offline buffer full")

	// ErrBufferDisabled is returned when a message is published while disconnected and
	// buffering is turned off.
	ErrBufferDisabled = errors.New("mqtt: offline buffering disabled")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
