package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/statusdeck-dev/statusdeck/internal/types"
	"github.com/statusdeck-dev/statusdeck/internal/utils"
)

var (
	tenantClients   = make(map[uint]map[*websocket.Conn]bool)
	tenantClientsMu sync.RWMutex
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// BroadcastIncidentRefresh tells every connected client of the tenant
// to refetch incident data. Called after committed mutations only.
func BroadcastIncidentRefresh(tenantID uint) {
	tenantClientsMu.RLock()
	clients, exists := tenantClients[tenantID]
	if !exists || len(clients) == 0 {
		tenantClientsMu.RUnlock()
		return
	}

	clientsCopy := make([]*websocket.Conn, 0, len(clients))
	for conn := range clients {
		clientsCopy = append(clientsCopy, conn)
	}
	tenantClientsMu.RUnlock()

	for _, conn := range clientsCopy {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Printf("Failed to set write deadline for broadcast: %v", err)
			continue
		}

		err := conn.WriteJSON(map[string]string{
			"type":    "refresh",
			"message": "Incident data updated",
		})

		if err != nil {
			log.Printf("Failed to broadcast refresh to client: %v", err)
			tenantClientsMu.Lock()
			if clients, exists := tenantClients[tenantID]; exists {
				delete(clients, conn)
				if len(clients) == 0 {
					delete(tenantClients, tenantID)
				}
			}
			tenantClientsMu.Unlock()
			conn.Close()
		}
	}
}

func WebSocket(c *gin.Context) {
	actor, err := utils.GetCurrentActor(c)

	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	tenantID := actor.TenantID

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, allowed := range types.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set initial read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline in pong handler: %v", err)
		}
		return nil
	})

	tenantClientsMu.Lock()
	if tenantClients[tenantID] == nil {
		tenantClients[tenantID] = make(map[*websocket.Conn]bool)
	}
	tenantClients[tenantID][conn] = true
	tenantClientsMu.Unlock()

	defer func() {
		tenantClientsMu.Lock()

		if clients, exists := tenantClients[tenantID]; exists {
			delete(clients, conn)

			if len(clients) == 0 {
				delete(tenantClients, tenantID)
			}
		}

		tenantClientsMu.Unlock()
		conn.Close()

		log.Printf("WebSocket connection closed for tenant %d", tenantID)
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Failed to set write deadline for welcome message: %v", err)
		return
	}

	err = conn.WriteJSON(map[string]string{
		"type":    "connected",
		"message": "WebSocket connection established",
	})

	if err != nil {
		log.Printf("Failed to send welcome message: %v", err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Failed to set write deadline for tenant %d: %v", tenantID, err)
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Ping failed for tenant %d: %v", tenantID, err)
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Failed to set read deadline for tenant %d: %v", tenantID, err)
			break
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for tenant %d: %v", tenantID, err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			log.Printf("Received message from tenant %d client: %s", tenantID, string(message))
		}
	}
}
