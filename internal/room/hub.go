package room

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"go-canvas/internal/protocol"
	"go-canvas/internal/scene"
)

// room groups the connections editing one design. Membership and presence
// only; no scene data lives here.
type room struct {
	designID string
	members  map[*Client]*protocol.UserPresence
}

// inbound is one raw message read off a client connection.
type inbound struct {
	client *Client
	data   []byte
}

// remoteMessage is a relay payload that arrived from another instance via
// redis pub/sub.
type remoteMessage struct {
	designID string
	payload  []byte
}

// relayEnvelope wraps a payload on the redis bus. Origin lets an instance
// skip its own publications.
type relayEnvelope struct {
	Origin   string          `json:"origin"`
	DesignID string          `json:"designId"`
	Payload  json.RawMessage `json:"payload"`
}

// Hub is the per-instance room manager. It is a pure membership + relay
// layer: it never interprets, validates, or persists operation contents.
// All state is touched only inside Run, so no locking is needed.
type Hub struct {
	rooms map[string]*room
	conns map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan *inbound

	fromRedis  chan *remoteMessage
	redis      *redis.Client
	pubsub     *redis.PubSub
	instanceID string
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		rooms:      make(map[string]*room),
		conns:      make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *inbound, 64),
		fromRedis:  make(chan *remoteMessage, 64),
		redis:      redisClient,
		instanceID: uuid.NewString(),
	}
	if redisClient != nil {
		// Subscribed to no channels yet; rooms add theirs as they appear.
		h.pubsub = redisClient.Subscribe(context.Background())
	}
	return h
}

// Run is the hub's event loop. It is the only goroutine that touches rooms.
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.subscribeLoop()
	}
	for {
		select {
		case client := <-h.Register:
			h.conns[client] = true

		case client := <-h.Unregister:
			// Always check before closing; a slow consumer may have been
			// dropped by fanOut already.
			if _, ok := h.conns[client]; ok {
				h.leave(client)
				delete(h.conns, client)
				close(client.send)
			}

		case in := <-h.Inbound:
			h.handleInbound(in.client, in.data)

		case rm := <-h.fromRedis:
			// Relayed from a peer instance; every local member gets it.
			if r, ok := h.rooms[rm.designID]; ok {
				h.fanOut(r, nil, rm.payload)
			}
		}
	}
}

func (h *Hub) handleInbound(c *Client, data []byte) {
	msgType, err := protocol.MessageType(data)
	if err != nil {
		h.sendError(c, "bad_message", err.Error())
		return
	}

	switch {
	case msgType == protocol.MsgJoinDesign:
		var join protocol.JoinDesign
		if err := json.Unmarshal(data, &join); err != nil {
			h.sendError(c, "bad_message", err.Error())
			return
		}
		h.join(c, join.DesignID, join.DisplayName)

	case msgType == protocol.MsgLeaveDesign:
		h.leave(c)

	case msgType == protocol.MsgCursorMove:
		var mv protocol.CursorMove
		if err := json.Unmarshal(data, &mv); err != nil {
			return
		}
		h.handleCursor(c, &mv)

	case msgType == protocol.MsgUserSelection:
		var sel protocol.UserSelection
		if err := json.Unmarshal(data, &sel); err != nil {
			return
		}
		h.handleSelection(c, &sel, data)

	case protocol.IsOperation(msgType) || msgType == protocol.MsgRefreshSignal:
		// Verbatim fan-out; the relay has no business logic.
		h.relay(c, data)

	default:
		h.sendError(c, "unsupported", "unsupported message type: "+msgType)
	}
}

func (h *Hub) join(c *Client, designID, displayName string) {
	if designID == "" {
		h.sendError(c, "bad_join", "designId is required")
		return
	}
	if c.designID != "" {
		h.leave(c)
	}

	r, ok := h.rooms[designID]
	if !ok {
		r = &room{designID: designID, members: make(map[*Client]*protocol.UserPresence)}
		h.rooms[designID] = r
		if h.pubsub != nil {
			if err := h.pubsub.Subscribe(context.Background(), busChannel(designID)); err != nil {
				log.Printf("room: redis subscribe %s: %v", designID, err)
			}
		}
	}

	if displayName == "" {
		displayName = c.Username
	}
	if displayName == "" {
		// Anonymous session with nothing negotiated: assign an identity.
		displayName = "user-" + uuid.NewString()[:8]
	}
	c.designID = designID
	r.members[c] = &protocol.UserPresence{ID: c.UserID, DisplayName: displayName}

	roster := make([]protocol.UserPresence, 0, len(r.members))
	for _, p := range r.members {
		roster = append(roster, *p)
	}
	h.send(c, protocol.Encode(&protocol.JoinedDesign{
		Type:     protocol.MsgJoinedDesign,
		DesignID: designID,
		Users:    roster,
	}))

	h.relay(c, protocol.Encode(&protocol.UserJoined{
		Type:     protocol.MsgUserJoined,
		UserID:   c.UserID,
		UserName: displayName,
	}))
}

// leave removes the member, notifies the rest of the room, and discards the
// room when it empties. A dropped connection takes the same path as an
// explicit leave_design.
func (h *Hub) leave(c *Client) {
	if c.designID == "" {
		return
	}
	r, ok := h.rooms[c.designID]
	if !ok {
		c.designID = ""
		return
	}
	if _, member := r.members[c]; !member {
		c.designID = ""
		return
	}
	delete(r.members, c)
	designID := c.designID
	c.designID = ""

	if len(r.members) == 0 {
		delete(h.rooms, designID)
		if h.pubsub != nil {
			if err := h.pubsub.Unsubscribe(context.Background(), busChannel(designID)); err != nil {
				log.Printf("room: redis unsubscribe %s: %v", designID, err)
			}
		}
		return
	}

	out := protocol.Encode(&protocol.UserLeft{
		Type:   protocol.MsgUserLeft,
		UserID: c.UserID,
	})
	h.fanOut(r, nil, out)
	h.publish(designID, out)
}

func (h *Hub) handleCursor(c *Client, mv *protocol.CursorMove) {
	r, p := h.member(c)
	if r == nil {
		return
	}
	p.Cursor = &scene.Point{X: mv.X, Y: mv.Y}
	out := protocol.Encode(&protocol.UserCursor{
		Type:     protocol.MsgUserCursor,
		UserID:   c.UserID,
		UserName: p.DisplayName,
		Cursor:   *p.Cursor,
	})
	h.fanOut(r, c, out)
	h.publish(r.designID, out)
}

func (h *Hub) handleSelection(c *Client, sel *protocol.UserSelection, raw []byte) {
	r, p := h.member(c)
	if r == nil {
		return
	}
	p.SelectedElementID = sel.ElementID
	h.relay(c, raw)
}

// relay forwards a payload verbatim to every other member of the sender's
// room, and onto the bus for members on other instances.
func (h *Hub) relay(c *Client, data []byte) {
	r, _ := h.member(c)
	if r == nil {
		return
	}
	h.fanOut(r, c, data)
	h.publish(r.designID, data)
}

// fanOut writes to every member except the excluded sender. A member whose
// send buffer is full is dropped, as in any slow-consumer policy.
func (h *Hub) fanOut(r *room, except *Client, data []byte) {
	var dropped []*Client
	for member := range r.members {
		if member == except {
			continue
		}
		select {
		case member.send <- data:
		default:
			dropped = append(dropped, member)
		}
	}
	for _, member := range dropped {
		h.drop(member)
	}
}

// drop disconnects a slow consumer through the same path as an explicit
// leave_design, so the rest of the room sees user_left and an emptied room is
// collected. The later transport-detected Unregister finds the connection
// gone and does nothing.
func (h *Hub) drop(c *Client) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	h.leave(c)
	delete(h.conns, c)
	close(c.send)
}

// send delivers directly to one connection, skipping ones already dropped.
func (h *Hub) send(c *Client, data []byte) {
	if !h.conns[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) member(c *Client) (*room, *protocol.UserPresence) {
	if c.designID == "" {
		return nil, nil
	}
	r, ok := h.rooms[c.designID]
	if !ok {
		return nil, nil
	}
	p, ok := r.members[c]
	if !ok {
		return nil, nil
	}
	return r, p
}

func (h *Hub) sendError(c *Client, code, msg string) {
	h.send(c, protocol.Encode(&protocol.ErrorMessage{
		Type:    protocol.MsgError,
		Code:    code,
		Message: msg,
	}))
}

// publish puts a relayed payload on the redis bus so peers connected to
// other instances of this service receive it too.
func (h *Hub) publish(designID string, payload []byte) {
	if h.redis == nil {
		return
	}
	env, err := json.Marshal(&relayEnvelope{
		Origin:   h.instanceID,
		DesignID: designID,
		Payload:  payload,
	})
	if err != nil {
		return
	}
	if err := h.redis.Publish(context.Background(), busChannel(designID), env).Err(); err != nil {
		log.Printf("room: redis publish %s: %v", designID, err)
	}
}

// subscribeLoop feeds bus messages from other instances into the hub loop.
func (h *Hub) subscribeLoop() {
	for msg := range h.pubsub.Channel() {
		var env relayEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("room: bad bus payload: %v", err)
			continue
		}
		if env.Origin == h.instanceID {
			continue
		}
		h.fromRedis <- &remoteMessage{designID: env.DesignID, payload: env.Payload}
	}
}

func busChannel(designID string) string {
	return "design:" + designID
}
