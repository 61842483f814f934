package room

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	myMiddleware "go-canvas/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeWs upgrades an authenticated request to a websocket connection and
// attaches it to the hub. Room membership is negotiated afterwards via
// join_design messages on the socket itself.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	username, ok2 := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok || !ok2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := newClient(h.hub, conn, strconv.Itoa(userID), username)
	client.hub.Register <- client

	go client.writePump()
	go client.readPump()
}
