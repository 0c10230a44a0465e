package sse

import (
	"fmt"
	"log"
	"sync"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub manages all SSE client connections
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// GlobalHub is the singleton SSE Hub instance
var GlobalHub = NewHub()

// NewHub creates a new SSE Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("[SSE] Client registered: id=%s user=%s (total: %d)", client.ID, client.UserID, len(h.clients))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		log.Printf("[SSE] Client unregistered: id=%s (total: %d)", clientID, len(h.clients))
	}
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			log.Printf("[SSE] Client %s buffer full, skipping event", client.ID)
		}
	}
}

// PublishBOMProgress BOM处理进度更新（解析/匹配/生成PO各阶段）
func PublishBOMProgress(bomID, status, step string, progress float64) {
	data := fmt.Sprintf(`{"bom_id":"%s","status":"%s","step":"%s","progress":%.1f}`, bomID, status, step, progress)
	GlobalHub.Broadcast(Event{
		EventType: "bom_progress",
		Data:      data,
	})
}

// PublishBOMCompleted BOM处理终态（completed/awaiting_review/failed/cancelled）
func PublishBOMCompleted(bomID, status string) {
	data := fmt.Sprintf(`{"bom_id":"%s","status":"%s"}`, bomID, status)
	GlobalHub.Broadcast(Event{
		EventType: "bom_completed",
		Data:      data,
	})
	log.Printf("[SSE] Published bom_completed: bom=%s status=%s", bomID, status)
}

// PublishPOUpdate PO状态流转事件
func PublishPOUpdate(poID, status string) {
	data := fmt.Sprintf(`{"po_id":"%s","status":"%s"}`, poID, status)
	GlobalHub.Broadcast(Event{
		EventType: "po_update",
		Data:      data,
	})
}
