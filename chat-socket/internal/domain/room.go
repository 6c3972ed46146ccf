package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RoomKind tags the three broadcast channel kinds.
type RoomKind uint8

const (
	RoomGlobal RoomKind = iota
	RoomUser
	RoomConversation
)

func (k RoomKind) String() string {
	switch k {
	case RoomUser:
		return "user"
	case RoomConversation:
		return "conversation"
	default:
		return "global"
	}
}

// Room is a routing key. It is comparable and used directly as a map key;
// the string form only appears in logs and on the backplane.
type Room struct {
	Kind RoomKind
	ID   string
}

// GlobalRoom holds every registered connection.
var GlobalRoom = Room{Kind: RoomGlobal}

func UserRoom(userID string) Room {
	return Room{Kind: RoomUser, ID: userID}
}

func ConversationRoom(conversationID int64) Room {
	return Room{Kind: RoomConversation, ID: strconv.FormatInt(conversationID, 10)}
}

// Key renders the room as "global", "user:<id>" or "conversation:<id>".
func (r Room) Key() string {
	if r.Kind == RoomGlobal {
		return RoomGlobal.String()
	}
	return r.Kind.String() + ":" + r.ID
}

func (r Room) String() string {
	return r.Key()
}

// ParseRoom is the inverse of Key.
func ParseRoom(key string) (Room, error) {
	if key == RoomGlobal.String() {
		return GlobalRoom, nil
	}

	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return Room{}, fmt.Errorf("invalid room key %q", key)
	}

	switch kind {
	case RoomUser.String():
		return UserRoom(id), nil
	case RoomConversation.String():
		return Room{Kind: RoomConversation, ID: id}, nil
	default:
		return Room{}, fmt.Errorf("invalid room kind %q", kind)
	}
}
