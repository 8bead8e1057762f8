// Package parlor provides the server side of a room-based messaging
// protocol: length-prefixed binary frames over TCP or WebSocket, with
// message decoding handled by the proto package and application logic
// plugged in through a MessageHandler.
package parlor

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/parlor-chat/parlor/proto"
)

// Errors returned by connection operations.
var (
	// ErrInvalidHandler is returned when no message handler is provided.
	ErrInvalidHandler = errors.New("invalid message handler")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBufferFull is returned when the send buffer cannot accept more
	// frames. This signals backpressure: drop the frame, or use
	// WriteBlocking/WriteTimeout to wait for space.
	ErrBufferFull = errors.New("send buffer full")
)

// ConnState is the lifecycle state of a connection.
type ConnState int32

const (
	// StateConnecting is the state before Run starts the I/O loops.
	StateConnecting ConnState = iota
	// StateOpen is the state while both loops are running.
	StateOpen
	// StateClosing is entered by Close: no more frames are decoded, but
	// already queued outbound frames are still flushed.
	StateClosing
	// StateClosed is the terminal state; the socket is closed.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MessageHandler receives every decoded inbound message. A non-nil reply is
// encoded and queued for sending; a non-nil error terminates the connection.
type MessageHandler interface {
	HandleMessage(id uuid.UUID, msg proto.Message) (proto.Message, error)
}

// MessageHandlerFunc adapts a function to the MessageHandler interface.
type MessageHandlerFunc func(id uuid.UUID, msg proto.Message) (proto.Message, error)

func (f MessageHandlerFunc) HandleMessage(id uuid.UUID, msg proto.Message) (proto.Message, error) {
	return f(id, msg)
}

// Conn manages one client connection: it feeds inbound bytes through a
// protocol decoder, dispatches messages to the handler, and writes queued
// outbound frames. The underlying transport only needs to be a net.Conn,
// so TCP connections and the WebSocket adapter are handled identically.
type Conn struct {
	id      uuid.UUID
	rawConn net.Conn
	logger  Logger

	opts options

	decoder *proto.Decoder
	encoder *proto.Encoder

	sendMsg chan []byte
	state   atomic.Int32
	closing chan struct{}
	once    sync.Once
	cancel  context.CancelFunc
}

// Default configuration values.
const (
	// defaultBufferSize is the default capacity of the outbound frame queue.
	defaultBufferSize = 16
	// readChunkSize is the size of the buffer handed to each transport read.
	readChunkSize = 4 * 1024
)

// NewConn wraps a transport connection. It applies the provided options and
// validates them before returning; a message handler is required.
func NewConn(conn net.Conn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &Conn{
		id:      uuid.New(),
		rawConn: conn,
		logger:  opts.logger,
		opts:    opts,
		decoder: proto.NewDecoder(opts.direction, opts.charset, opts.maxFrameSize),
		encoder: proto.NewEncoder(opts.charset),
		sendMsg: make(chan []byte, opts.bufferSize),
		closing: make(chan struct{}),
	}, nil
}

// ID returns the connection's identity, assigned at construction.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// State returns the connection's lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// IsClosed reports whether Close has been called or the connection has
// terminated.
func (c *Conn) IsClosed() bool {
	return c.State() >= StateClosing
}

// Run starts the connection's read and write loops and blocks until an
// error occurs, the context is canceled, or Close is called. The socket is
// closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
	c.logger.Info("connection established", "id", c.id, "addr", c.Addr())
	c.logger.Debug("connection options", "id", c.id,
		"charset", c.opts.charset,
		"direction", c.opts.direction,
		"buffer_size", c.opts.bufferSize,
		"max_frame_size", c.opts.maxFrameSize,
		"idle_timeout", c.opts.idleTimeout)

	ctx, c.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// Unblock a pending transport read when shutdown starts.
	group.Go(func() error {
		select {
		case <-child.Done():
		case <-c.closing:
		}
		_ = c.rawConn.SetReadDeadline(time.Now())
		return nil
	})

	err := group.Wait()
	c.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "id", c.id, "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "id", c.id, "addr", c.Addr())
	}

	return err
}

// Close starts a graceful shutdown: the connection enters StateClosing, no
// further inbound frames are decoded, and the write loop flushes frames
// already queued before the socket is closed. Safe to call multiple times.
func (c *Conn) Close() error {
	c.once.Do(func() {
		c.state.Store(int32(StateClosing))
		close(c.closing)
		// Unblock a pending transport read.
		_ = c.rawConn.SetReadDeadline(time.Now())
		if c.cancel == nil {
			c.closeConn()
		}
	})
	return nil
}

// Write queues a message without blocking (fire-and-forget). It returns
// ErrBufferFull when the queue is full and ErrConnectionClosed once the
// connection is closing. Queued means accepted, not yet sent.
func (c *Conn) Write(message proto.Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	frame, err := c.encoder.Encode(message)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a message, waiting for queue space until the context
// is canceled. Use this when delivery matters more than latency.
func (c *Conn) WriteBlocking(ctx context.Context, message proto.Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	frame, err := c.encoder.Encode(message)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	case <-c.closing:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues a message, waiting for queue space up to the given
// duration. It returns ErrBufferFull when the timeout expires first.
func (c *Conn) WriteTimeout(message proto.Message, timeout time.Duration) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	frame, err := c.encoder.Encode(message)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	case <-c.closing:
		return ErrConnectionClosed
	case <-time.After(timeout):
		return ErrBufferFull
	}
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop reads transport bytes, feeds them through the decoder, and
// dispatches every completed message. A framing error is fatal; a field
// decode error is routed through the error callback.
func (c *Conn) readLoop(ctx context.Context) error {
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closing:
			return nil
		default:
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.idleTimeout))

			n, err := c.rawConn.Read(buf)
			if n > 0 {
				if loopErr := c.dispatch(ctx, buf[:n]); loopErr != nil {
					return loopErr
				}
			}
			if err != nil {
				if c.IsClosed() {
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Debug("read error", "id", c.id, "addr", c.Addr(), "error", err)
				if c.opts.onError(err) == Disconnect {
					return err
				}
			}
		}
	}
}

// dispatch decodes freshly read bytes and hands each message to the handler.
func (c *Conn) dispatch(ctx context.Context, data []byte) error {
	decoded, err := c.decoder.Feed(data)
	for _, d := range decoded {
		if d.Err != nil {
			c.logger.Warn("undecodable message payload",
				"id", c.id, "code", d.Message.Code(), "error", d.Err)
			if c.opts.onError(d.Err) == Disconnect {
				return d.Err
			}
			continue
		}

		if len(d.Surplus) > 0 {
			c.logger.Warn("message payload has surplus bytes",
				"id", c.id, "code", d.Message.Code(), "surplus", d.SurplusHex())
		}

		reply, handleErr := c.opts.handler.HandleMessage(c.id, d.Message)
		if handleErr != nil {
			return handleErr
		}
		if reply == nil {
			continue
		}

		frame, encErr := c.encoder.Encode(reply)
		if encErr != nil {
			c.logger.Warn("reply encode failed",
				"id", c.id, "code", reply.Code(), "error", encErr)
			if c.opts.onError(encErr) == Disconnect {
				return encErr
			}
			continue
		}

		select {
		case c.sendMsg <- frame:
		case <-c.closing:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// writeLoop sends queued frames to the transport. On graceful shutdown it
// flushes whatever is already queued before returning.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closing:
			return c.flush()
		case frame := <-c.sendMsg:
			if err := c.write(frame); err != nil {
				return err
			}
		}
	}
}

// flush drains frames queued before shutdown started.
func (c *Conn) flush() error {
	for {
		select {
		case frame := <-c.sendMsg:
			if err := c.write(frame); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// write sends one frame with a deadline. The error callback decides whether
// a failed write terminates the connection.
func (c *Conn) write(frame []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.idleTimeout))

	if _, err := c.rawConn.Write(frame); err != nil {
		c.logger.Debug("write error", "id", c.id, "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// closeConn moves the connection to its terminal state and closes the
// socket.
func (c *Conn) closeConn() {
	c.state.Store(int32(StateClosed))
	c.rawConn.Close()
}
