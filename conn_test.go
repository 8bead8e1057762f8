package parlor

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/parlor-chat/parlor/proto"
)

// createTestTCPPair creates a connected pair of TCP connections for testing
func createTestTCPPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	clientChan := make(chan *net.TCPConn, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
		if err != nil {
			errChan <- err
			return
		}
		clientChan <- conn
	}()

	serverConn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("failed to accept: %v", err)
	}

	select {
	case clientConn := <-clientChan:
		return serverConn, clientConn
	case err := <-errChan:
		serverConn.Close()
		t.Fatalf("client dial failed: %v", err)
		return nil, nil
	case <-time.After(5 * time.Second):
		serverConn.Close()
		t.Fatal("timeout waiting for client connection")
		return nil, nil
	}
}

// echoRoomHandler acknowledges room joins and ignores everything else.
func echoRoomHandler() MessageHandler {
	return MessageHandlerFunc(func(id uuid.UUID, msg proto.Message) (proto.Message, error) {
		if join, ok := msg.(*proto.RoomJoinRequest); ok {
			return &proto.RoomJoinResponse{RoomName: join.RoomName}, nil
		}
		return nil, nil
	})
}

func TestNewConn(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn, HandlerOption(echoRoomHandler()))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn == nil {
		t.Fatal("NewConn returned nil")
	}
	if conn.ID() == uuid.Nil {
		t.Error("connection has no identity")
	}
	if conn.State() != StateConnecting {
		t.Errorf("State() = %v, want %v", conn.State(), StateConnecting)
	}
}

func TestNewConn_MissingHandler(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	_, err := NewConn(serverConn)
	if err != ErrInvalidHandler {
		t.Errorf("expected ErrInvalidHandler, got %v", err)
	}
}

func TestConn_Addr(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn, HandlerOption(echoRoomHandler()))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn.Addr() == nil {
		t.Error("Addr returned nil")
	}
}

func TestConn_Write_ChannelBlocked(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		HandlerOption(echoRoomHandler()),
		BufferSizeOption(1),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	msg := &proto.RoomLeaveResponse{RoomName: "lobby"}

	// Fill the queue
	if err := conn.Write(msg); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	if err := conn.Write(msg); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
}

func TestConn_Write_EncodeError(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn, HandlerOption(echoRoomHandler()))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	// Not representable in the default Windows-1252 charset.
	err = conn.Write(&proto.RoomMessageResponse{RoomName: "lobby", Username: "a", Message: "日本語"})
	var encErr *proto.EncodingError
	if !errors.As(err, &encErr) {
		t.Errorf("expected *proto.EncodingError, got %v", err)
	}
}

func TestConn_WriteBlocking_ContextCanceled(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		HandlerOption(echoRoomHandler()),
		BufferSizeOption(1),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	msg := &proto.RoomLeaveResponse{RoomName: "lobby"}
	if err := conn.Write(msg); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := conn.WriteBlocking(ctx, msg); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestConn_WriteTimeout(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		HandlerOption(echoRoomHandler()),
		BufferSizeOption(1),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	msg := &proto.RoomLeaveResponse{RoomName: "lobby"}
	if err := conn.Write(msg); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	if err := conn.WriteTimeout(msg, time.Millisecond*10); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
}

func TestConn_Run_ContextCanceled(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn, HandlerOption(echoRoomHandler()))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if conn.State() != StateClosed {
			t.Errorf("State() = %v, want %v", conn.State(), StateClosed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Run_RequestReply(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		HandlerOption(echoRoomHandler()),
		IdleTimeoutOption(time.Second*5),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(ctx)
	}()

	// Send a join request from the client side.
	frame, err := proto.NewEncoder(proto.Windows1252).Encode(&proto.RoomJoinRequest{RoomName: "lobby"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := clientConn.Write(frame); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	// Read the reply and decode it as a server message.
	dec := proto.NewDecoder(proto.ServerMessages, proto.Windows1252, 0)
	clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))

	buf := make([]byte, 1024)
	var reply proto.Message
	for reply == nil {
		n, err := clientConn.Read(buf)
		if err != nil {
			t.Fatalf("client read failed: %v", err)
		}
		decoded, err := dec.Feed(buf[:n])
		if err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		if len(decoded) > 0 {
			reply = decoded[0].Message
		}
	}

	joined, ok := reply.(*proto.RoomJoinResponse)
	if !ok {
		t.Fatalf("reply = %T, want *proto.RoomJoinResponse", reply)
	}
	if joined.RoomName != "lobby" {
		t.Errorf("RoomName = %q, want %q", joined.RoomName, "lobby")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Run_FragmentedFrames(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	received := make(chan proto.Message, 2)
	handler := MessageHandlerFunc(func(id uuid.UUID, msg proto.Message) (proto.Message, error) {
		received <- msg
		return nil, nil
	})

	conn, err := NewConn(serverConn,
		HandlerOption(handler),
		IdleTimeoutOption(time.Second*5),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	enc := proto.NewEncoder(proto.Windows1252)
	first, _ := enc.Encode(&proto.RoomJoinRequest{RoomName: "a"})
	second, _ := enc.Encode(&proto.RoomLeaveRequest{RoomName: "b"})
	stream := append(append([]byte{}, first...), second...)

	// Deliver the two frames in three uneven chunks.
	for _, chunk := range [][]byte{stream[:3], stream[3 : len(first)+2], stream[len(first)+2:]} {
		if _, err := clientConn.Write(chunk); err != nil {
			t.Fatalf("client write failed: %v", err)
		}
		time.Sleep(time.Millisecond * 20)
	}

	for i, wantRoom := range []string{"a", "b"} {
		select {
		case msg := <-received:
			switch m := msg.(type) {
			case *proto.RoomJoinRequest:
				if m.RoomName != wantRoom {
					t.Errorf("message %d room = %q, want %q", i, m.RoomName, wantRoom)
				}
			case *proto.RoomLeaveRequest:
				if m.RoomName != wantRoom {
					t.Errorf("message %d room = %q, want %q", i, m.RoomName, wantRoom)
				}
			default:
				t.Errorf("message %d = %T", i, msg)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func TestConn_Run_OversizedFrameDisconnects(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		HandlerOption(echoRoomHandler()),
		MaxFrameSizeOption(64),
		IdleTimeoutOption(time.Second*5),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()

	// Declared length far above the configured maximum.
	if _, err := clientConn.Write([]byte{0xff, 0xff, 0x00, 0x00}); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	select {
	case err := <-done:
		var tooLarge *proto.FrameTooLargeError
		if !errors.As(err, &tooLarge) {
			t.Errorf("expected *proto.FrameTooLargeError, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Run_BadPayloadContinues(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	received := make(chan proto.Message, 2)
	handler := MessageHandlerFunc(func(id uuid.UUID, msg proto.Message) (proto.Message, error) {
		received <- msg
		return nil, nil
	})

	conn, err := NewConn(serverConn,
		HandlerOption(handler),
		OnErrorOption(func(err error) ErrorAction { return Continue }),
		IdleTimeoutOption(time.Second*5),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	// A join frame whose room-name length runs past the payload.
	bad := []byte{
		0x08, 0x00, 0x00, 0x00, // length 8
		0x0e, 0x00, 0x00, 0x00, // code 14
		0x40, 0x00, 0x00, 0x00, // string length 64, nothing follows
	}
	good, _ := proto.NewEncoder(proto.Windows1252).Encode(&proto.RoomJoinRequest{RoomName: "lobby"})

	if _, err := clientConn.Write(append(bad, good...)); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	// The bad frame is skipped; the good one still arrives.
	select {
	case msg := <-received:
		join, ok := msg.(*proto.RoomJoinRequest)
		if !ok {
			t.Fatalf("message = %T, want *proto.RoomJoinRequest", msg)
		}
		if join.RoomName != "lobby" {
			t.Errorf("RoomName = %q, want %q", join.RoomName, "lobby")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestConn_Run_HandlerError(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	handlerErr := errors.New("handler error")
	handler := MessageHandlerFunc(func(id uuid.UUID, msg proto.Message) (proto.Message, error) {
		return nil, handlerErr
	})

	conn, err := NewConn(serverConn,
		HandlerOption(handler),
		IdleTimeoutOption(time.Second*5),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()

	frame, _ := proto.NewEncoder(proto.Windows1252).Encode(&proto.RoomListRequest{})
	if _, err := clientConn.Write(frame); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	select {
	case err := <-done:
		if err != handlerErr {
			t.Errorf("expected handler error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Close_FlushesQueuedFrames(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		HandlerOption(echoRoomHandler()),
		IdleTimeoutOption(time.Second*5),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()
	time.Sleep(time.Millisecond * 50)

	if err := conn.Write(&proto.RoomLeaveResponse{RoomName: "lobby"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !conn.IsClosed() {
		t.Error("expected IsClosed after Close")
	}

	// The queued frame still reaches the client.
	dec := proto.NewDecoder(proto.ServerMessages, proto.Windows1252, 0)
	clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))

	buf := make([]byte, 1024)
	var got proto.Message
	for got == nil {
		n, err := clientConn.Read(buf)
		if n > 0 {
			decoded, ferr := dec.Feed(buf[:n])
			if ferr != nil {
				t.Fatalf("Feed failed: %v", ferr)
			}
			if len(decoded) > 0 {
				got = decoded[0].Message
			}
		}
		if err != nil && got == nil {
			t.Fatalf("client read failed: %v", err)
		}
	}

	if left, ok := got.(*proto.RoomLeaveResponse); !ok || left.RoomName != "lobby" {
		t.Errorf("got %#v, want RoomLeaveResponse for lobby", got)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after graceful close", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}

	if conn.State() != StateClosed {
		t.Errorf("State() = %v, want %v", conn.State(), StateClosed)
	}

	// Writes after close are rejected.
	if err := conn.Write(&proto.RoomLeaveResponse{RoomName: "x"}); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}
