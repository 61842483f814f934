// Package protocol defines the flat JSON messages exchanged between editing
// clients and the relay. Every message carries a discriminating "type" field.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"go-canvas/internal/scene"
)

// Message type discriminators.
const (
	// Client -> server room management.
	MsgJoinDesign  = "join_design"
	MsgLeaveDesign = "leave_design"

	// Element operations, relayed verbatim to the rest of the room.
	MsgElementAdded       = "element_added"
	MsgElementUpdated     = "element_updated"
	MsgElementMoved       = "element_moved"
	MsgElementTransformed = "element_transformed"
	MsgElementDeleted     = "element_deleted"

	// Presence, ephemeral and never persisted.
	MsgCursorMove    = "cursor_move"
	MsgUserSelection = "user_selection"
	MsgRefreshSignal = "refresh_signal"

	// Server -> client.
	MsgJoinedDesign = "joined_design"
	MsgUserJoined   = "user_joined"
	MsgUserLeft     = "user_left"
	MsgUserCursor   = "user_cursor"
	MsgError        = "error"
)

// UserPresence is one member of a design room's roster.
type UserPresence struct {
	ID                string       `json:"id"`
	DisplayName       string       `json:"displayName"`
	Cursor            *scene.Point `json:"cursorPosition,omitempty"`
	SelectedElementID *string      `json:"selectedElementId,omitempty"`
}

// Operation describes one scene mutation. The emitting client stamps UserID
// (the origin) and Timestamp at send time, never at apply time. Delivery is
// at-least-once and best-effort; receivers must be idempotent per operation type:
// adds insert-if-absent, updates merge-patch, deletes are no-ops on unknown
// ids.
type Operation struct {
	Type      string         `json:"type"`
	DesignID  string         `json:"designId"`
	ElementID string         `json:"elementId"`
	Element   *scene.Element `json:"element,omitempty"`
	Updates   map[string]any `json:"updates,omitempty"`
	UserID    string         `json:"userId"`
	Timestamp int64          `json:"timestamp"`
}

// NewOperation stamps origin and send time. opType must be one of the
// element_* constants.
func NewOperation(opType, designID, elementID, userID string) *Operation {
	return &Operation{
		Type:      opType,
		DesignID:  designID,
		ElementID: elementID,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// IsOperation reports whether a message type is an element operation.
func IsOperation(msgType string) bool {
	switch msgType {
	case MsgElementAdded, MsgElementUpdated, MsgElementMoved,
		MsgElementTransformed, MsgElementDeleted:
		return true
	}
	return false
}

// ZDirective extracts a symbolic z-order directive from an operation's
// updates map. element_moved may carry {"zIndex": "front"} instead of a
// numeric value; receivers must translate it into the local z-order
// recomputation, never assign it literally.
func (op *Operation) ZDirective() (scene.ZDirective, bool) {
	if op.Updates == nil {
		return "", false
	}
	raw, ok := op.Updates["zIndex"].(string)
	if !ok {
		return "", false
	}
	switch d := scene.ZDirective(raw); d {
	case scene.ZFront, scene.ZBack, scene.ZForward, scene.ZBackward:
		return d, true
	}
	return "", false
}

type JoinDesign struct {
	Type        string `json:"type"`
	DesignID    string `json:"designId"`
	DisplayName string `json:"displayName"`
}

type LeaveDesign struct {
	Type     string `json:"type"`
	DesignID string `json:"designId"`
}

type CursorMove struct {
	Type     string  `json:"type"`
	DesignID string  `json:"designId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type UserSelection struct {
	Type      string  `json:"type"`
	DesignID  string  `json:"designId"`
	ElementID *string `json:"elementId"`
	UserID    string  `json:"userId"`
	UserName  string  `json:"userName"`
}

type RefreshSignal struct {
	Type     string `json:"type"`
	DesignID string `json:"designId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type JoinedDesign struct {
	Type     string         `json:"type"`
	DesignID string         `json:"designId"`
	Users    []UserPresence `json:"users"`
}

type UserJoined struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UserLeft struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type UserCursor struct {
	Type     string      `json:"type"`
	UserID   string      `json:"userId"`
	UserName string      `json:"userName"`
	Cursor   scene.Point `json:"cursor"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope is the minimal decode used to discriminate.
type envelope struct {
	Type string `json:"type"`
}

// MessageType peeks at the discriminator without a full decode. The relay
// uses it to route raw payloads verbatim.
func MessageType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("message missing type")
	}
	return env.Type, nil
}

// Decode parses a raw message into its concrete typed struct.
func Decode(data []byte) (any, error) {
	msgType, err := MessageType(data)
	if err != nil {
		return nil, err
	}

	var msg any
	switch {
	case IsOperation(msgType):
		msg = &Operation{}
	case msgType == MsgJoinDesign:
		msg = &JoinDesign{}
	case msgType == MsgLeaveDesign:
		msg = &LeaveDesign{}
	case msgType == MsgCursorMove:
		msg = &CursorMove{}
	case msgType == MsgUserSelection:
		msg = &UserSelection{}
	case msgType == MsgRefreshSignal:
		msg = &RefreshSignal{}
	case msgType == MsgJoinedDesign:
		msg = &JoinedDesign{}
	case msgType == MsgUserJoined:
		msg = &UserJoined{}
	case msgType == MsgUserLeft:
		msg = &UserLeft{}
	case msgType == MsgUserCursor:
		msg = &UserCursor{}
	case msgType == MsgError:
		msg = &ErrorMessage{}
	default:
		return nil, fmt.Errorf("unknown message type %q", msgType)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msgType, err)
	}
	return msg, nil
}

// Encode marshals a message for the wire. Marshal errors on these flat
// structs indicate a programming bug, so they panic rather than propagate.
func Encode(msg any) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		panic(fmt.Sprintf("protocol: encode: %v", err))
	}
	return b
}
