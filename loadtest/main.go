package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 100 // ⚠️ Start small. Each pair is 2 users editing one design.
	OpCount   = 50  // Element operations per editor
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type DesignResponse struct {
	ID string `json:"id"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d editor pairs, %d ops each...", PairCount, OpCount)
	var wg sync.WaitGroup

	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("editor_%d_a", pairID)
	userB := fmt.Sprintf("editor_%d_b", pairID)
	pass := "password123"

	tokenA := authenticate(userA, pass)
	tokenB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return
	}

	// A owns the design; B collaborates on it.
	designID := createDesign(tokenA, fmt.Sprintf("loadtest-%d", pairID))
	if designID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go editCanvas(&wsWg, tokenA, designID, userA)
	go editCanvas(&wsWg, tokenB, designID, userB)
	wsWg.Wait()
}

func authenticate(username, password string) string {
	// Register (ignore error, might already exist)
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func createDesign(token, name string) string {
	body, _ := json.Marshal(map[string]any{
		"name":         name,
		"canvasWidth":  1920,
		"canvasHeight": 1080,
	})
	req, _ := http.NewRequest("POST", BaseURL+"/api/designs", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		log.Printf("❌ Create Design Failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	var data DesignResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.ID
}

// editCanvas joins the design room, then hammers it with adds and drags
// while draining everything the relay fans back.
func editCanvas(wg *sync.WaitGroup, token, designID, user string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	// Drain inbound so the relay never sees us as a slow consumer.
	received := 0
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			received++
		}
	}()

	err = conn.WriteJSON(map[string]any{
		"type":        "join_design",
		"designId":    designID,
		"displayName": user,
	})
	if err != nil {
		log.Printf("❌ Join Fail [%s]: %v", user, err)
		return
	}

	for i := 0; i < OpCount; i++ {
		elementID := fmt.Sprintf("%s-el-%d", user, i)
		op := map[string]any{
			"type":      "element_added",
			"designId":  designID,
			"elementId": elementID,
			"userId":    user,
			"timestamp": time.Now().UnixMilli(),
			"element": map[string]any{
				"id":      elementID,
				"type":    "rect",
				"x":       float64(i * 10),
				"y":       float64(i * 10),
				"width":   100,
				"height":  80,
				"fill":    "#3366ff",
				"opacity": 1,
				"visible": true,
				"zIndex":  i,
				"version": 1,
			},
		}
		if err := conn.WriteJSON(op); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}

		// Follow each add with a drag to exercise the update path.
		move := map[string]any{
			"type":      "element_moved",
			"designId":  designID,
			"elementId": elementID,
			"userId":    user,
			"timestamp": time.Now().UnixMilli(),
			"updates":   map[string]any{"x": float64(i * 12), "y": float64(i * 7)},
		}
		if err := conn.WriteJSON(move); err != nil {
			break
		}

		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished %d ops (received %d relayed)", user, OpCount*2, received)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
