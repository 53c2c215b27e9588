package domain

import "time"

type RoomID string

// RoomRecord is the persisted part of a room, created out-of-band by the API
// server before anybody can join it here.
type RoomRecord struct {
	ID        RoomID
	Title     string
	MasterID  UserID
	Password  string // empty means no password
	Timer     TimerProperty
	Blacklist []BlockedUser
	ExpiredAt time.Time
}

func (r *RoomRecord) HasPassword() bool { return r.Password != "" }

// WaitingRoomData is returned to a client entering the lobby of a room.
type WaitingRoomData struct {
	JoinerList  []RoomJoiner  `json:"joinerList"`
	Capacity    int           `json:"capacity"`
	MasterID    UserID        `json:"masterId"`
	Blacklist   []BlockedUser `json:"blacklist"`
	HasPassword bool          `json:"hasPassword"`
}

// UserAndProducerID says who publishes which producer.
type UserAndProducerID struct {
	ProducerID string `json:"producerId"`
	UserID     UserID `json:"userId"`
}

type ChatMessage struct {
	ID         string `json:"id"`
	AuthorID   UserID `json:"authorId"`
	AuthorName string `json:"authorName"`
	Content    string `json:"content"`
	SentAt     string `json:"sentAt"` // ISO-8601
}
