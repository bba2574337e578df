package protocol

// Inbound envelope types.
const (
	TypeLogin            = "LOGIN"
	TypeRegister         = "REGISTER"
	TypeEditProfile      = "EDIT_PROFILE"
	TypeGetOnlinePlayers = "GET_ONLINE_PLAYERS"
	TypeCreateRoom       = "CREATE_ROOM"
	TypeJoinRoom         = "JOIN_ROOM"
	TypeQuickMatch       = "QUICK_MATCH"
	TypeGetRooms         = "GET_ROOMS"
	TypeViewMatch        = "VIEW_MATCH"
	TypeLeaveRoom        = "LEAVE_ROOM"
	TypeMove             = "MOVE"
	TypeSurrender        = "SURRENDER"
	TypePlayAgain        = "PLAY_AGAIN"
	TypeChat             = "CHAT"
	TypePing             = "PING"
)

// Outbound envelope types.
const (
	TypeLoginSuccess   = "LOGIN_SUCCESS"
	TypeError          = "ERROR"
	TypeRoomCreated    = "ROOM_CREATED"
	TypeRoomJoined     = "ROOM_JOINED"
	TypeRoomList       = "ROOM_LIST"
	TypeOnlinePlayers  = "ONLINE_PLAYERS"
	TypeViewMatchInfo  = "VIEW_MATCH_INFO"
	TypeBoardState     = "BOARD_STATE"
	TypeSyncTimer      = "SYNC_TIMER"
	TypeOpponentMove   = "OPPONENT_MOVE"
	TypeGameOver       = "GAME_OVER"
	TypeOpponentLeft   = "OPPONENT_LEFT"
	TypeProfileUpdated = "PROFILE_UPDATED"
	TypePong           = "PONG"
)

// Envelope is one inbound request: a flat JSON object discriminated by Type.
// Absent fields decode to zero values; each handler validates what it needs.
type Envelope struct {
	Type string `json:"type"`

	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	OldPassword string `json:"old_password,omitempty"`
	NewPassword string `json:"new_password,omitempty"`

	RoomID    string `json:"room_id,omitempty"`
	TimeLimit int    `json:"time_limit,omitempty"`

	X int `json:"x"`
	Y int `json:"y"`

	Message string `json:"message,omitempty"`
}

// Outbound envelopes. Each carries its own literal type tag so the wire
// stays self-describing.

type LoginSuccess struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	DisplayName string `json:"display_name"`
}

func NewLoginSuccess(message, displayName string) LoginSuccess {
	return LoginSuccess{Type: TypeLoginSuccess, Message: message, DisplayName: displayName}
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

type RoomCreated struct {
	Type         string `json:"type"`
	RoomID       string `json:"room_id"`
	PlayerSymbol string `json:"player_symbol"`
}

func NewRoomCreated(roomID string) RoomCreated {
	return RoomCreated{Type: TypeRoomCreated, RoomID: roomID, PlayerSymbol: "X"}
}

type RoomJoined struct {
	Type         string   `json:"type"`
	RoomID       string   `json:"room_id"`
	Players      []string `json:"players"`
	PlayerSymbol string   `json:"player_symbol"`
	TimeLimit    int      `json:"time_limit"`
}

func NewRoomJoined(roomID string, players []string, symbol string, timeLimitSeconds int) RoomJoined {
	return RoomJoined{
		Type:         TypeRoomJoined,
		RoomID:       roomID,
		Players:      players,
		PlayerSymbol: symbol,
		TimeLimit:    timeLimitSeconds,
	}
}

// RoomSummary is one row of the lobby room list.
type RoomSummary struct {
	ID          string   `json:"id"`
	Count       int      `json:"count"`
	Status      string   `json:"status"`
	Players     []string `json:"players"`
	MatchText   string   `json:"match_text"`
	HasPassword bool     `json:"has_password"`
}

type RoomList struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

func NewRoomList(rooms []RoomSummary) RoomList {
	return RoomList{Type: TypeRoomList, Rooms: rooms}
}

// PlayerSummary is one row of the online players list.
type PlayerSummary struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

type OnlinePlayers struct {
	Type    string          `json:"type"`
	Players []PlayerSummary `json:"players"`
}

func NewOnlinePlayers(players []PlayerSummary) OnlinePlayers {
	return OnlinePlayers{Type: TypeOnlinePlayers, Players: players}
}

type ViewMatchInfo struct {
	Type      string   `json:"type"`
	RoomID    string   `json:"room_id"`
	Players   []string `json:"players"`
	Status    string   `json:"status"`
	TimeLimit int      `json:"time_limit"`
}

func NewViewMatchInfo(roomID string, players []string, status string, timeLimitSeconds int) ViewMatchInfo {
	return ViewMatchInfo{
		Type:      TypeViewMatchInfo,
		RoomID:    roomID,
		Players:   players,
		Status:    status,
		TimeLimit: timeLimitSeconds,
	}
}

// BoardMove is a single placement in a board snapshot.
type BoardMove struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Symbol string `json:"symbol"`
}

type BoardState struct {
	Type   string      `json:"type"`
	RoomID string      `json:"room_id"`
	Size   int         `json:"size"`
	Moves  []BoardMove `json:"moves"`
}

func NewBoardState(roomID string, size int, moves []BoardMove) BoardState {
	return BoardState{Type: TypeBoardState, RoomID: roomID, Size: size, Moves: moves}
}

type SyncTimer struct {
	Type             string `json:"type"`
	RoomID           string `json:"room_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

func NewSyncTimer(roomID string, remainingSeconds int) SyncTimer {
	return SyncTimer{Type: TypeSyncTimer, RoomID: roomID, RemainingSeconds: remainingSeconds}
}

type OpponentMove struct {
	Type   string `json:"type"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Player string `json:"player"`
	Symbol string `json:"symbol"`
}

func NewOpponentMove(x, y int, player, symbol string) OpponentMove {
	return OpponentMove{Type: TypeOpponentMove, X: x, Y: y, Player: player, Symbol: symbol}
}

type GameOver struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Winner  string `json:"winner"`
}

func NewGameOver(message, winner string) GameOver {
	return GameOver{Type: TypeGameOver, Message: message, Winner: winner}
}

type OpponentLeft struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewOpponentLeft(message string) OpponentLeft {
	return OpponentLeft{Type: TypeOpponentLeft, Message: message}
}

type Chat struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

func NewChat(sender, message string) Chat {
	return Chat{Type: TypeChat, Sender: sender, Message: message}
}

type ProfileUpdated struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	DisplayName string `json:"display_name"`
}

func NewProfileUpdated(displayName string) ProfileUpdated {
	return ProfileUpdated{Type: TypeProfileUpdated, Message: "profile updated", DisplayName: displayName}
}

type Pong struct {
	Type string `json:"type"`
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}
