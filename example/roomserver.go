// Command roomserver is a minimal room service built on the parlor
// connection layer. It accepts protocol frames over TCP and WebSocket,
// tracks room membership in memory, and relays room messages to members.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/parlor-chat/parlor"
	"github.com/parlor-chat/parlor/proto"
)

type roomService struct {
	sync.RWMutex
	connections map[uuid.UUID]*parlor.Conn
	rooms       map[string]map[uuid.UUID]string // room -> member id -> username
	names       map[uuid.UUID]string
}

func newRoomService() *roomService {
	return &roomService{
		connections: make(map[uuid.UUID]*parlor.Conn),
		rooms:       make(map[string]map[uuid.UUID]string),
		names:       make(map[uuid.UUID]string),
	}
}

func (s *roomService) HandleMessage(id uuid.UUID, msg proto.Message) (proto.Message, error) {
	switch m := msg.(type) {
	case *proto.LoginRequest:
		s.Lock()
		s.names[id] = m.Username
		s.Unlock()
		return &proto.LoginResponse{
			Success: true,
			MOTD:    "welcome to the parlor",
			IP:      remoteIP(s.conn(id)),
		}, nil

	case *proto.RoomJoinRequest:
		return s.join(id, m.RoomName), nil

	case *proto.RoomLeaveRequest:
		s.leave(id, m.RoomName)
		return &proto.RoomLeaveResponse{RoomName: m.RoomName}, nil

	case *proto.RoomMessageRequest:
		s.say(id, m.RoomName, m.Message)
		return nil, nil

	case *proto.RoomListRequest:
		return s.list(), nil

	case *proto.Unrecognized:
		slog.Warn("unrecognized message", "id", id, "code", m.Tag)
		return nil, nil

	default:
		return nil, nil
	}
}

func (s *roomService) join(id uuid.UUID, room string) *proto.RoomJoinResponse {
	s.Lock()
	defer s.Unlock()

	members, ok := s.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]string)
		s.rooms[room] = members
	}
	name := s.names[id]
	members[id] = name

	resp := &proto.RoomJoinResponse{RoomName: room}
	for memberID, memberName := range members {
		resp.Users = append(resp.Users, proto.User{
			Name:   memberName,
			Status: proto.StatusOnline,
		})
		if memberID == id {
			continue
		}
		s.notify(memberID, &proto.RoomUserJoinedResponse{
			RoomName: room,
			User:     proto.User{Name: name, Status: proto.StatusOnline},
		})
	}
	return resp
}

func (s *roomService) leave(id uuid.UUID, room string) {
	s.Lock()
	defer s.Unlock()

	members, ok := s.rooms[room]
	if !ok {
		return
	}
	name := members[id]
	delete(members, id)
	if len(members) == 0 {
		delete(s.rooms, room)
		return
	}
	for memberID := range members {
		s.notify(memberID, &proto.RoomUserLeftResponse{RoomName: room, Username: name})
	}
}

func (s *roomService) say(id uuid.UUID, room, text string) {
	s.RLock()
	defer s.RUnlock()

	members, ok := s.rooms[room]
	if _, present := members[id]; !ok || !present {
		return
	}
	out := &proto.RoomMessageResponse{
		RoomName: room,
		Username: s.names[id],
		Message:  text,
	}
	for memberID := range members {
		s.notify(memberID, out)
	}
}

func (s *roomService) list() *proto.RoomListResponse {
	s.RLock()
	defer s.RUnlock()

	resp := &proto.RoomListResponse{}
	for room, members := range s.rooms {
		resp.Rooms = append(resp.Rooms, proto.RoomCount{
			Name:  room,
			Users: uint32(len(members)),
		})
	}
	return resp
}

// notify queues a message for a member, dropping it under backpressure.
// Callers hold at least the read lock.
func (s *roomService) notify(id uuid.UUID, msg proto.Message) {
	conn, ok := s.connections[id]
	if !ok {
		return
	}
	if err := conn.Write(msg); err != nil {
		slog.Warn("notify failed", "id", id, "code", msg.Code(), "error", err)
	}
}

func (s *roomService) conn(id uuid.UUID) *parlor.Conn {
	s.RLock()
	defer s.RUnlock()
	return s.connections[id]
}

func (s *roomService) addConn(conn *parlor.Conn) {
	s.Lock()
	defer s.Unlock()
	s.connections[conn.ID()] = conn
}

func (s *roomService) removeConn(id uuid.UUID) {
	s.Lock()
	defer s.Unlock()
	delete(s.connections, id)
	delete(s.names, id)
	for room, members := range s.rooms {
		delete(members, id)
		if len(members) == 0 {
			delete(s.rooms, room)
		}
	}
}

func remoteIP(conn *parlor.Conn) netip.Addr {
	if conn != nil {
		if tcp, ok := conn.Addr().(*net.TCPAddr); ok {
			if v4 := tcp.IP.To4(); v4 != nil {
				return netip.AddrFrom4([4]byte(v4))
			}
		}
	}
	return netip.AddrFrom4([4]byte{127, 0, 0, 1})
}

func (s *roomService) Handle(conn *net.TCPConn) {
	newConn, err := parlor.NewConn(conn,
		parlor.HandlerOption(s),
		parlor.OnErrorOption(func(err error) parlor.ErrorAction {
			slog.Error("connection error", "error", err)
			return parlor.Disconnect
		}),
	)
	if err != nil {
		slog.Error("connection setup failed", "error", err)
		conn.Close()
		return
	}

	s.addConn(newConn)
	defer s.removeConn(newConn.ID())

	if err := newConn.Run(context.Background()); err != nil {
		slog.Debug("connection ended", "id", newConn.ID(), "error", err)
	}
}

func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:2242")
	if err != nil {
		panic(err)
	}

	service := newRoomService()

	server, err := parlor.NewServer(addr)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	wsHandler, err := parlor.NewWebsocketHandler(parlor.HandlerOption(service))
	if err != nil {
		slog.Error("failed to create websocket handler", "error", err)
		return
	}
	go func() {
		slog.Info("websocket endpoint", "addr", "127.0.0.1:2243")
		if err := http.ListenAndServe("127.0.0.1:2243", wsHandler); err != nil {
			slog.Error("websocket server error", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		cancel()
	}()

	slog.Info("server start", "addr", addr.String())
	if err := server.Serve(ctx, service); err != nil {
		slog.Error("server error", "error", err)
	}
}
