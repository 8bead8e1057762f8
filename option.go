package parlor

import (
	"time"

	"github.com/parlor-chat/parlor/proto"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	handler MessageHandler
	logger  Logger

	// onError is called for recoverable read, write, and decode errors.
	// Returns Disconnect to close the connection, Continue to suppress.
	onError func(error) ErrorAction

	charset   proto.Charset
	direction proto.Direction

	bufferSize   int           // capacity of the outbound frame queue
	maxFrameSize int           // maximum declared frame payload length
	idleTimeout  time.Duration // read/write deadline for the transport
}

// Option is a function that configures connection options.
type Option func(*options)

// HandlerOption returns an Option that sets the message handler. The
// handler is required and must be provided before creating a connection.
func HandlerOption(h MessageHandler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// CharsetOption returns an Option that sets the charset used for string
// fields in both directions. The default is Windows-1252.
func CharsetOption(cs proto.Charset) Option {
	return func(o *options) {
		o.charset = cs
	}
}

// DirectionOption returns an Option that selects which half of the protocol
// the connection decodes. Servers keep the default, proto.ClientMessages;
// client implementations pass proto.ServerMessages.
func DirectionOption(dir proto.Direction) Option {
	return func(o *options) {
		o.direction = dir
	}
}

// BufferSizeOption returns an Option that sets the capacity of the outbound
// frame queue. A larger queue absorbs more backpressure before writes fail.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// MaxFrameSizeOption returns an Option that sets the maximum accepted frame
// payload length. Frames declaring a larger length terminate the connection.
func MaxFrameSizeOption(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// IdleTimeoutOption returns an Option that sets the transport read/write
// deadline. A connection with no traffic for this duration is considered
// dead.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// OnErrorOption returns an Option that sets the error callback, invoked for
// recoverable read, write, and message decode errors. Return Disconnect to
// close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.handler == nil {
		return ErrInvalidHandler
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxFrameSize <= 0 {
		opts.maxFrameSize = proto.DefaultMaxFrameSize
	}

	if opts.idleTimeout <= 0 {
		opts.idleTimeout = time.Second * 60
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}
