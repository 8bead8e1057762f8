// Package proto implements the parlor wire protocol: a stream of
// length-prefixed binary frames carrying room-service messages.
//
// Each frame starts with a 32-bit little-endian length, followed by that many
// payload bytes. The payload begins with a 32-bit little-endian message code
// identifying the kind; the remaining bytes are the kind's fields:
//
//   - 32-bit integers: 4 bytes, little-endian.
//   - 16-bit integers: carried as 32-bit integers with the upper half zero.
//   - booleans: a single 0 or 1 byte.
//   - IPv4 addresses: a 32-bit integer.
//   - strings: a 32-bit length prefix followed by charset-encoded bytes.
//   - lists: a 32-bit element count followed by the encoded elements.
//
// The same code can mean different kinds depending on who sent the frame, so
// decoding is direction-aware (see Direction). Unknown codes decode into
// Unrecognized rather than failing, keeping the stream readable across
// protocol revisions.
package proto

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/netip"
)

// Message codes. The numbering is sparse because it is inherited from the
// wire protocol, not assigned by this package.
const (
	CodeLogin            uint32 = 1
	CodeSetListenPort    uint32 = 2
	CodePeerAddress      uint32 = 3
	CodeUserStatus       uint32 = 7
	CodeRoomMessage      uint32 = 13
	CodeRoomJoin         uint32 = 14
	CodeRoomLeave        uint32 = 15
	CodeRoomUserJoined   uint32 = 16
	CodeRoomUserLeft     uint32 = 17
	CodeConnectToPeer    uint32 = 18
	CodeFileSearch       uint32 = 26
	CodeUserStats        uint32 = 36
	CodeRoomList         uint32 = 64
	CodePrivilegedUsers  uint32 = 69
	CodeParentMinSpeed   uint32 = 83
	CodeParentSpeedRatio uint32 = 84
	CodeWishlistInterval uint32 = 104
	CodeRoomTickers      uint32 = 113
	CodeCannotConnect    uint32 = 1001
)

// Message is implemented by every protocol message kind.
type Message interface {
	// Code returns the kind's wire code.
	Code() uint32
}

// fieldMessage is the internal contract between the message kinds and the
// codec: every kind except Unrecognized knows how to read and write its own
// fields. Unrecognized is special-cased because it carries raw bytes.
type fieldMessage interface {
	Message
	decodeFields(r *fieldReader) error
	encodeFields(w *fieldWriter) error
}

// UserStatus is the presence state of a user.
type UserStatus uint32

const (
	StatusOffline UserStatus = 1
	StatusAway    UserStatus = 2
	StatusOnline  UserStatus = 3
)

func (s UserStatus) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusAway:
		return "away"
	case StatusOnline:
		return "online"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

func (r *fieldReader) userStatus() (UserStatus, error) {
	n, err := r.uint32()
	if err != nil {
		return 0, err
	}
	switch s := UserStatus(n); s {
	case StatusOffline, StatusAway, StatusOnline:
		return s, nil
	default:
		return 0, fmt.Errorf("invalid user status %d", n)
	}
}

// User is the last known information about a fellow user, as rooms report it.
type User struct {
	Name         string
	Status       UserStatus
	AverageSpeed uint32
	Downloads    uint32
	Unknown      uint32
	Files        uint32
	Folders      uint32
	FreeSlots    uint32
	Country      string
}

// RoomCount pairs a room name with its member count in room listings.
type RoomCount struct {
	Name  string
	Users uint32
}

// Ticker is a per-user ticker line shown in a room.
type Ticker struct {
	User    string
	Message string
}

/* -------------------------------------------------------------------------
 * Client → server
 * ------------------------------------------------------------------------- */

// LoginRequest authenticates the connection.
type LoginRequest struct {
	Username string
	Password string
	Major    uint32
	Digest   string
	Minor    uint32
}

// NewLoginRequest builds a login request with the digest the protocol
// expects: the hex MD5 of username+password.
func NewLoginRequest(username, password string, major, minor uint32) *LoginRequest {
	sum := md5.Sum([]byte(username + password))
	return &LoginRequest{
		Username: username,
		Password: password,
		Major:    major,
		Digest:   hex.EncodeToString(sum[:]),
		Minor:    minor,
	}
}

func (m *LoginRequest) Code() uint32 { return CodeLogin }

func (m *LoginRequest) decodeFields(r *fieldReader) (err error) {
	if m.Username, err = r.str(); err != nil {
		return err
	}
	if m.Password, err = r.str(); err != nil {
		return err
	}
	if m.Major, err = r.uint32(); err != nil {
		return err
	}
	if m.Digest, err = r.str(); err != nil {
		return err
	}
	m.Minor, err = r.uint32()
	return err
}

func (m *LoginRequest) encodeFields(w *fieldWriter) error {
	if err := w.str(m.Username); err != nil {
		return err
	}
	if err := w.str(m.Password); err != nil {
		return err
	}
	w.uint32(m.Major)
	if err := w.str(m.Digest); err != nil {
		return err
	}
	w.uint32(m.Minor)
	return nil
}

// SetListenPortRequest announces the port the client listens on for peer
// connections.
type SetListenPortRequest struct {
	Port uint16
}

func (m *SetListenPortRequest) Code() uint32 { return CodeSetListenPort }

func (m *SetListenPortRequest) decodeFields(r *fieldReader) (err error) {
	m.Port, err = r.uint16()
	return err
}

func (m *SetListenPortRequest) encodeFields(w *fieldWriter) error {
	w.uint16(m.Port)
	return nil
}

// PeerAddressRequest asks for a user's address.
type PeerAddressRequest struct {
	Username string
}

func (m *PeerAddressRequest) Code() uint32 { return CodePeerAddress }

func (m *PeerAddressRequest) decodeFields(r *fieldReader) (err error) {
	m.Username, err = r.str()
	return err
}

func (m *PeerAddressRequest) encodeFields(w *fieldWriter) error {
	return w.str(m.Username)
}

// UserStatusRequest asks for a user's presence state.
type UserStatusRequest struct {
	Username string
}

func (m *UserStatusRequest) Code() uint32 { return CodeUserStatus }

func (m *UserStatusRequest) decodeFields(r *fieldReader) (err error) {
	m.Username, err = r.str()
	return err
}

func (m *UserStatusRequest) encodeFields(w *fieldWriter) error {
	return w.str(m.Username)
}

// RoomMessageRequest says something in a room.
type RoomMessageRequest struct {
	RoomName string
	Message  string
}

func (m *RoomMessageRequest) Code() uint32 { return CodeRoomMessage }

func (m *RoomMessageRequest) decodeFields(r *fieldReader) (err error) {
	if m.RoomName, err = r.str(); err != nil {
		return err
	}
	m.Message, err = r.str()
	return err
}

func (m *RoomMessageRequest) encodeFields(w *fieldWriter) error {
	if err := w.str(m.RoomName); err != nil {
		return err
	}
	return w.str(m.Message)
}

// RoomJoinRequest asks to join a room, creating it if needed.
type RoomJoinRequest struct {
	RoomName string
}

func (m *RoomJoinRequest) Code() uint32 { return CodeRoomJoin }

func (m *RoomJoinRequest) decodeFields(r *fieldReader) (err error) {
	m.RoomName, err = r.str()
	return err
}

func (m *RoomJoinRequest) encodeFields(w *fieldWriter) error {
	return w.str(m.RoomName)
}

// RoomLeaveRequest asks to leave a room.
type RoomLeaveRequest struct {
	RoomName string
}

func (m *RoomLeaveRequest) Code() uint32 { return CodeRoomLeave }

func (m *RoomLeaveRequest) decodeFields(r *fieldReader) (err error) {
	m.RoomName, err = r.str()
	return err
}

func (m *RoomLeaveRequest) encodeFields(w *fieldWriter) error {
	return w.str(m.RoomName)
}

// RoomListRequest asks for the list of rooms. It has no fields.
type RoomListRequest struct{}

func (m *RoomListRequest) Code() uint32 { return CodeRoomList }

func (m *RoomListRequest) decodeFields(*fieldReader) error { return nil }

func (m *RoomListRequest) encodeFields(*fieldWriter) error { return nil }

// ConnectToPeerRequest asks the server to relay a connection offer.
type ConnectToPeerRequest struct {
	Token          uint32
	Username       string
	ConnectionType string
}

func (m *ConnectToPeerRequest) Code() uint32 { return CodeConnectToPeer }

func (m *ConnectToPeerRequest) decodeFields(r *fieldReader) (err error) {
	if m.Token, err = r.uint32(); err != nil {
		return err
	}
	if m.Username, err = r.str(); err != nil {
		return err
	}
	m.ConnectionType, err = r.str()
	return err
}

func (m *ConnectToPeerRequest) encodeFields(w *fieldWriter) error {
	w.uint32(m.Token)
	if err := w.str(m.Username); err != nil {
		return err
	}
	return w.str(m.ConnectionType)
}

// FileSearchRequest starts a search with a client-chosen ticket.
type FileSearchRequest struct {
	Ticket uint32
	Query  string
}

func (m *FileSearchRequest) Code() uint32 { return CodeFileSearch }

func (m *FileSearchRequest) decodeFields(r *fieldReader) (err error) {
	if m.Ticket, err = r.uint32(); err != nil {
		return err
	}
	m.Query, err = r.str()
	return err
}

func (m *FileSearchRequest) encodeFields(w *fieldWriter) error {
	w.uint32(m.Ticket)
	return w.str(m.Query)
}

// CannotConnectRequest reports a failed peer connection attempt.
type CannotConnectRequest struct {
	Token    uint32
	Username string
}

func (m *CannotConnectRequest) Code() uint32 { return CodeCannotConnect }

func (m *CannotConnectRequest) decodeFields(r *fieldReader) (err error) {
	if m.Token, err = r.uint32(); err != nil {
		return err
	}
	m.Username, err = r.str()
	return err
}

func (m *CannotConnectRequest) encodeFields(w *fieldWriter) error {
	w.uint32(m.Token)
	return w.str(m.Username)
}

/* -------------------------------------------------------------------------
 * Server → client
 * ------------------------------------------------------------------------- */

// LoginResponse reports the outcome of a login attempt. On success MOTD and
// IP are set; on failure Reason is set.
type LoginResponse struct {
	Success bool
	MOTD    string
	IP      netip.Addr
	Reason  string
}

func (m *LoginResponse) Code() uint32 { return CodeLogin }

func (m *LoginResponse) decodeFields(r *fieldReader) (err error) {
	if m.Success, err = r.boolean(); err != nil {
		return err
	}
	if !m.Success {
		m.Reason, err = r.str()
		return err
	}
	if m.MOTD, err = r.str(); err != nil {
		return err
	}
	m.IP, err = r.ipv4()
	return err
}

func (m *LoginResponse) encodeFields(w *fieldWriter) error {
	w.boolean(m.Success)
	if !m.Success {
		return w.str(m.Reason)
	}
	if err := w.str(m.MOTD); err != nil {
		return err
	}
	return w.ipv4(m.IP)
}

// PeerAddressResponse carries a user's last known address.
type PeerAddressResponse struct {
	Username string
	IP       netip.Addr
	Port     uint16
}

func (m *PeerAddressResponse) Code() uint32 { return CodePeerAddress }

func (m *PeerAddressResponse) decodeFields(r *fieldReader) (err error) {
	if m.Username, err = r.str(); err != nil {
		return err
	}
	if m.IP, err = r.ipv4(); err != nil {
		return err
	}
	m.Port, err = r.uint16()
	return err
}

func (m *PeerAddressResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.Username); err != nil {
		return err
	}
	if err := w.ipv4(m.IP); err != nil {
		return err
	}
	w.uint16(m.Port)
	return nil
}

// UserStatusResponse carries a user's presence state.
type UserStatusResponse struct {
	Username   string
	Status     UserStatus
	Privileged bool
}

func (m *UserStatusResponse) Code() uint32 { return CodeUserStatus }

func (m *UserStatusResponse) decodeFields(r *fieldReader) (err error) {
	if m.Username, err = r.str(); err != nil {
		return err
	}
	if m.Status, err = r.userStatus(); err != nil {
		return err
	}
	m.Privileged, err = r.boolean()
	return err
}

func (m *UserStatusResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.Username); err != nil {
		return err
	}
	w.uint32(uint32(m.Status))
	w.boolean(m.Privileged)
	return nil
}

// RoomMessageResponse relays something said in a room.
type RoomMessageResponse struct {
	RoomName string
	Username string
	Message  string
}

func (m *RoomMessageResponse) Code() uint32 { return CodeRoomMessage }

func (m *RoomMessageResponse) decodeFields(r *fieldReader) (err error) {
	if m.RoomName, err = r.str(); err != nil {
		return err
	}
	if m.Username, err = r.str(); err != nil {
		return err
	}
	m.Message, err = r.str()
	return err
}

func (m *RoomMessageResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.RoomName); err != nil {
		return err
	}
	if err := w.str(m.Username); err != nil {
		return err
	}
	return w.str(m.Message)
}

// RoomJoinResponse confirms a join and describes the room's members.
//
// The member attributes travel as parallel lists on the wire; this struct
// zips them into Users. Owner and Operators are only present for private
// rooms; an empty Owner marks a public room and omits both fields when
// encoding, matching how servers emit the optional trailer.
type RoomJoinResponse struct {
	RoomName  string
	Users     []User
	Owner     string
	Operators []string
}

func (m *RoomJoinResponse) Code() uint32 { return CodeRoomJoin }

func (m *RoomJoinResponse) decodeFields(r *fieldReader) error {
	roomName, err := r.str()
	if err != nil {
		return err
	}
	names, err := r.stringList()
	if err != nil {
		return err
	}
	users := make([]User, len(names))
	for i, name := range names {
		users[i].Name = name
	}

	numStatuses, err := r.count()
	if err != nil {
		return err
	}
	for i := 0; i < numStatuses; i++ {
		status, err := r.userStatus()
		if err != nil {
			return err
		}
		if i < len(users) {
			users[i].Status = status
		}
	}

	numInfos, err := r.count()
	if err != nil {
		return err
	}
	for i := 0; i < numInfos; i++ {
		var u User
		if u.AverageSpeed, err = r.uint32(); err != nil {
			return err
		}
		if u.Downloads, err = r.uint32(); err != nil {
			return err
		}
		if u.Unknown, err = r.uint32(); err != nil {
			return err
		}
		if u.Files, err = r.uint32(); err != nil {
			return err
		}
		if u.Folders, err = r.uint32(); err != nil {
			return err
		}
		if i < len(users) {
			users[i].AverageSpeed = u.AverageSpeed
			users[i].Downloads = u.Downloads
			users[i].Unknown = u.Unknown
			users[i].Files = u.Files
			users[i].Folders = u.Folders
		}
	}

	slots, err := r.uint32List()
	if err != nil {
		return err
	}
	for i, s := range slots {
		if i < len(users) {
			users[i].FreeSlots = s
		}
	}

	countries, err := r.stringList()
	if err != nil {
		return err
	}
	for i, c := range countries {
		if i < len(users) {
			users[i].Country = c
		}
	}

	m.RoomName = roomName
	m.Users = users
	m.Owner = ""
	m.Operators = nil
	if r.remaining() > 0 {
		if m.Owner, err = r.str(); err != nil {
			return err
		}
		if m.Operators, err = r.stringList(); err != nil {
			return err
		}
	}
	return nil
}

func (m *RoomJoinResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.RoomName); err != nil {
		return err
	}

	names := make([]string, len(m.Users))
	for i, u := range m.Users {
		names[i] = u.Name
	}
	if err := w.stringList(names); err != nil {
		return err
	}

	w.uint32(uint32(len(m.Users)))
	for _, u := range m.Users {
		w.uint32(uint32(u.Status))
	}

	w.uint32(uint32(len(m.Users)))
	for _, u := range m.Users {
		w.uint32(u.AverageSpeed)
		w.uint32(u.Downloads)
		w.uint32(u.Unknown)
		w.uint32(u.Files)
		w.uint32(u.Folders)
	}

	w.uint32(uint32(len(m.Users)))
	for _, u := range m.Users {
		w.uint32(u.FreeSlots)
	}

	w.uint32(uint32(len(m.Users)))
	for _, u := range m.Users {
		if err := w.str(u.Country); err != nil {
			return err
		}
	}

	if m.Owner != "" {
		if err := w.str(m.Owner); err != nil {
			return err
		}
		return w.stringList(m.Operators)
	}
	return nil
}

// RoomLeaveResponse confirms that the client left a room.
type RoomLeaveResponse struct {
	RoomName string
}

func (m *RoomLeaveResponse) Code() uint32 { return CodeRoomLeave }

func (m *RoomLeaveResponse) decodeFields(r *fieldReader) (err error) {
	m.RoomName, err = r.str()
	return err
}

func (m *RoomLeaveResponse) encodeFields(w *fieldWriter) error {
	return w.str(m.RoomName)
}

// RoomListResponse enumerates the rooms the server knows about.
type RoomListResponse struct {
	Rooms             []RoomCount
	OwnedPrivate      []RoomCount
	OtherPrivate      []RoomCount
	OperatedRoomNames []string
}

func (m *RoomListResponse) Code() uint32 { return CodeRoomList }

func decodeRoomCounts(r *fieldReader) ([]RoomCount, error) {
	names, err := r.stringList()
	if err != nil {
		return nil, err
	}
	counts, err := r.uint32List()
	if err != nil {
		return nil, err
	}
	rooms := make([]RoomCount, len(names))
	for i, name := range names {
		rooms[i].Name = name
		if i < len(counts) {
			rooms[i].Users = counts[i]
		}
	}
	return rooms, nil
}

func encodeRoomCounts(w *fieldWriter, rooms []RoomCount) error {
	names := make([]string, len(rooms))
	counts := make([]uint32, len(rooms))
	for i, rc := range rooms {
		names[i] = rc.Name
		counts[i] = rc.Users
	}
	if err := w.stringList(names); err != nil {
		return err
	}
	w.uint32List(counts)
	return nil
}

func (m *RoomListResponse) decodeFields(r *fieldReader) (err error) {
	if m.Rooms, err = decodeRoomCounts(r); err != nil {
		return err
	}
	if m.OwnedPrivate, err = decodeRoomCounts(r); err != nil {
		return err
	}
	if m.OtherPrivate, err = decodeRoomCounts(r); err != nil {
		return err
	}
	m.OperatedRoomNames, err = r.stringList()
	return err
}

func (m *RoomListResponse) encodeFields(w *fieldWriter) error {
	if err := encodeRoomCounts(w, m.Rooms); err != nil {
		return err
	}
	if err := encodeRoomCounts(w, m.OwnedPrivate); err != nil {
		return err
	}
	if err := encodeRoomCounts(w, m.OtherPrivate); err != nil {
		return err
	}
	return w.stringList(m.OperatedRoomNames)
}

// RoomTickersResponse carries the ticker lines of a room.
type RoomTickersResponse struct {
	RoomName string
	Tickers  []Ticker
}

func (m *RoomTickersResponse) Code() uint32 { return CodeRoomTickers }

func (m *RoomTickersResponse) decodeFields(r *fieldReader) error {
	roomName, err := r.str()
	if err != nil {
		return err
	}
	n, err := r.count()
	if err != nil {
		return err
	}
	tickers := make([]Ticker, 0, n)
	for i := 0; i < n; i++ {
		var t Ticker
		if t.User, err = r.str(); err != nil {
			return err
		}
		if t.Message, err = r.str(); err != nil {
			return err
		}
		tickers = append(tickers, t)
	}
	m.RoomName = roomName
	m.Tickers = tickers
	return nil
}

func (m *RoomTickersResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.RoomName); err != nil {
		return err
	}
	w.uint32(uint32(len(m.Tickers)))
	for _, t := range m.Tickers {
		if err := w.str(t.User); err != nil {
			return err
		}
		if err := w.str(t.Message); err != nil {
			return err
		}
	}
	return nil
}

// RoomUserJoinedResponse announces that a user entered a room.
type RoomUserJoinedResponse struct {
	RoomName string
	User     User
}

func (m *RoomUserJoinedResponse) Code() uint32 { return CodeRoomUserJoined }

func (m *RoomUserJoinedResponse) decodeFields(r *fieldReader) (err error) {
	if m.RoomName, err = r.str(); err != nil {
		return err
	}
	if m.User.Name, err = r.str(); err != nil {
		return err
	}
	if m.User.Status, err = r.userStatus(); err != nil {
		return err
	}
	if m.User.AverageSpeed, err = r.uint32(); err != nil {
		return err
	}
	if m.User.Downloads, err = r.uint32(); err != nil {
		return err
	}
	if m.User.Unknown, err = r.uint32(); err != nil {
		return err
	}
	if m.User.Files, err = r.uint32(); err != nil {
		return err
	}
	if m.User.Folders, err = r.uint32(); err != nil {
		return err
	}
	if m.User.FreeSlots, err = r.uint32(); err != nil {
		return err
	}
	m.User.Country, err = r.str()
	return err
}

func (m *RoomUserJoinedResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.RoomName); err != nil {
		return err
	}
	if err := w.str(m.User.Name); err != nil {
		return err
	}
	w.uint32(uint32(m.User.Status))
	w.uint32(m.User.AverageSpeed)
	w.uint32(m.User.Downloads)
	w.uint32(m.User.Unknown)
	w.uint32(m.User.Files)
	w.uint32(m.User.Folders)
	w.uint32(m.User.FreeSlots)
	return w.str(m.User.Country)
}

// RoomUserLeftResponse announces that a user left a room.
type RoomUserLeftResponse struct {
	RoomName string
	Username string
}

func (m *RoomUserLeftResponse) Code() uint32 { return CodeRoomUserLeft }

func (m *RoomUserLeftResponse) decodeFields(r *fieldReader) (err error) {
	if m.RoomName, err = r.str(); err != nil {
		return err
	}
	m.Username, err = r.str()
	return err
}

func (m *RoomUserLeftResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.RoomName); err != nil {
		return err
	}
	return w.str(m.Username)
}

// UserStatsResponse carries a user's sharing statistics.
type UserStatsResponse struct {
	Username     string
	AverageSpeed uint32
	Downloads    uint32
	Files        uint32
	Folders      uint32
}

func (m *UserStatsResponse) Code() uint32 { return CodeUserStats }

func (m *UserStatsResponse) decodeFields(r *fieldReader) (err error) {
	if m.Username, err = r.str(); err != nil {
		return err
	}
	if m.AverageSpeed, err = r.uint32(); err != nil {
		return err
	}
	if m.Downloads, err = r.uint32(); err != nil {
		return err
	}
	if m.Files, err = r.uint32(); err != nil {
		return err
	}
	m.Folders, err = r.uint32()
	return err
}

func (m *UserStatsResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.Username); err != nil {
		return err
	}
	w.uint32(m.AverageSpeed)
	w.uint32(m.Downloads)
	w.uint32(m.Files)
	w.uint32(m.Folders)
	return nil
}

// PrivilegedUsersResponse lists the privileged users.
type PrivilegedUsersResponse struct {
	Users []string
}

func (m *PrivilegedUsersResponse) Code() uint32 { return CodePrivilegedUsers }

func (m *PrivilegedUsersResponse) decodeFields(r *fieldReader) (err error) {
	m.Users, err = r.stringList()
	return err
}

func (m *PrivilegedUsersResponse) encodeFields(w *fieldWriter) error {
	return w.stringList(m.Users)
}

// WishlistIntervalResponse sets the client's wishlist search interval.
type WishlistIntervalResponse struct {
	Seconds uint32
}

func (m *WishlistIntervalResponse) Code() uint32 { return CodeWishlistInterval }

func (m *WishlistIntervalResponse) decodeFields(r *fieldReader) (err error) {
	m.Seconds, err = r.uint32()
	return err
}

func (m *WishlistIntervalResponse) encodeFields(w *fieldWriter) error {
	w.uint32(m.Seconds)
	return nil
}

// ParentMinSpeedResponse carries a distributed-network tuning value.
type ParentMinSpeedResponse struct {
	Value uint32
}

func (m *ParentMinSpeedResponse) Code() uint32 { return CodeParentMinSpeed }

func (m *ParentMinSpeedResponse) decodeFields(r *fieldReader) (err error) {
	m.Value, err = r.uint32()
	return err
}

func (m *ParentMinSpeedResponse) encodeFields(w *fieldWriter) error {
	w.uint32(m.Value)
	return nil
}

// ParentSpeedRatioResponse carries a distributed-network tuning value.
type ParentSpeedRatioResponse struct {
	Value uint32
}

func (m *ParentSpeedRatioResponse) Code() uint32 { return CodeParentSpeedRatio }

func (m *ParentSpeedRatioResponse) decodeFields(r *fieldReader) (err error) {
	m.Value, err = r.uint32()
	return err
}

func (m *ParentSpeedRatioResponse) encodeFields(w *fieldWriter) error {
	w.uint32(m.Value)
	return nil
}

// ConnectToPeerResponse relays another client's connection offer.
type ConnectToPeerResponse struct {
	Username       string
	ConnectionType string
	IP             netip.Addr
	Port           uint16
	Token          uint32
	Privileged     bool
}

func (m *ConnectToPeerResponse) Code() uint32 { return CodeConnectToPeer }

func (m *ConnectToPeerResponse) decodeFields(r *fieldReader) (err error) {
	if m.Username, err = r.str(); err != nil {
		return err
	}
	if m.ConnectionType, err = r.str(); err != nil {
		return err
	}
	if m.IP, err = r.ipv4(); err != nil {
		return err
	}
	if m.Port, err = r.uint16(); err != nil {
		return err
	}
	if m.Token, err = r.uint32(); err != nil {
		return err
	}
	m.Privileged, err = r.boolean()
	return err
}

func (m *ConnectToPeerResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.Username); err != nil {
		return err
	}
	if err := w.str(m.ConnectionType); err != nil {
		return err
	}
	if err := w.ipv4(m.IP); err != nil {
		return err
	}
	w.uint16(m.Port)
	w.uint32(m.Token)
	w.boolean(m.Privileged)
	return nil
}

// FileSearchResponse relays another user's search.
type FileSearchResponse struct {
	Username string
	Ticket   uint32
	Query    string
}

func (m *FileSearchResponse) Code() uint32 { return CodeFileSearch }

func (m *FileSearchResponse) decodeFields(r *fieldReader) (err error) {
	if m.Username, err = r.str(); err != nil {
		return err
	}
	if m.Ticket, err = r.uint32(); err != nil {
		return err
	}
	m.Query, err = r.str()
	return err
}

func (m *FileSearchResponse) encodeFields(w *fieldWriter) error {
	if err := w.str(m.Username); err != nil {
		return err
	}
	w.uint32(m.Ticket)
	return w.str(m.Query)
}

/* -------------------------------------------------------------------------
 * Fallback
 * ------------------------------------------------------------------------- */

// Unrecognized is the decode result for a frame whose code this package does
// not know. The payload excludes the code word. Encoding an Unrecognized
// message re-emits the original code and payload unchanged, so frames can be
// relayed without understanding them.
type Unrecognized struct {
	Tag     uint32
	Payload []byte
}

func (m *Unrecognized) Code() uint32 { return m.Tag }

/* -------------------------------------------------------------------------
 * Direction-aware kind tables
 * ------------------------------------------------------------------------- */

// Direction selects which half of the protocol a Decoder parses: frames sent
// by clients carry request kinds, frames sent by servers carry response
// kinds, and several codes are shared between the two.
type Direction int

const (
	// ClientMessages decodes frames sent by a client.
	ClientMessages Direction = iota
	// ServerMessages decodes frames sent by a server.
	ServerMessages
)

func (d Direction) String() string {
	switch d {
	case ClientMessages:
		return "client"
	case ServerMessages:
		return "server"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// newMessage returns a fresh message value for the given code in the given
// direction, or nil when the code is unknown.
func newMessage(dir Direction, code uint32) fieldMessage {
	if dir == ClientMessages {
		switch code {
		case CodeLogin:
			return new(LoginRequest)
		case CodeSetListenPort:
			return new(SetListenPortRequest)
		case CodePeerAddress:
			return new(PeerAddressRequest)
		case CodeUserStatus:
			return new(UserStatusRequest)
		case CodeRoomMessage:
			return new(RoomMessageRequest)
		case CodeRoomJoin:
			return new(RoomJoinRequest)
		case CodeRoomLeave:
			return new(RoomLeaveRequest)
		case CodeRoomList:
			return new(RoomListRequest)
		case CodeConnectToPeer:
			return new(ConnectToPeerRequest)
		case CodeFileSearch:
			return new(FileSearchRequest)
		case CodeCannotConnect:
			return new(CannotConnectRequest)
		}
		return nil
	}

	switch code {
	case CodeLogin:
		return new(LoginResponse)
	case CodePeerAddress:
		return new(PeerAddressResponse)
	case CodeUserStatus:
		return new(UserStatusResponse)
	case CodeRoomMessage:
		return new(RoomMessageResponse)
	case CodeRoomJoin:
		return new(RoomJoinResponse)
	case CodeRoomLeave:
		return new(RoomLeaveResponse)
	case CodeRoomList:
		return new(RoomListResponse)
	case CodeRoomTickers:
		return new(RoomTickersResponse)
	case CodeRoomUserJoined:
		return new(RoomUserJoinedResponse)
	case CodeRoomUserLeft:
		return new(RoomUserLeftResponse)
	case CodeUserStats:
		return new(UserStatsResponse)
	case CodePrivilegedUsers:
		return new(PrivilegedUsersResponse)
	case CodeWishlistInterval:
		return new(WishlistIntervalResponse)
	case CodeParentMinSpeed:
		return new(ParentMinSpeedResponse)
	case CodeParentSpeedRatio:
		return new(ParentSpeedRatioResponse)
	case CodeConnectToPeer:
		return new(ConnectToPeerResponse)
	case CodeFileSearch:
		return new(FileSearchResponse)
	}
	return nil
}
