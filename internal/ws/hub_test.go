package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, tenantID uuid.UUID) *Client {
	return &Client{
		hub:      hub,
		tenantID: tenantID,
		send:     make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	tenantID := uuid.New()
	client := mockClient(hub, tenantID)

	// Register client
	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[tenantID] == nil {
		t.Fatal("tenant room not created")
	}
	if !hub.rooms[tenantID][client] {
		t.Fatal("client not registered in tenant room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	tenantID := uuid.New()
	client := mockClient(hub, tenantID)

	// Register client
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	// Unregister client
	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	// Room should be cleaned up when empty
	if hub.rooms[tenantID] != nil {
		t.Fatal("tenant room not cleaned up after last client unregistered")
	}
}

func TestBroadcastToSingleTenant(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	tenant1 := uuid.New()
	tenant2 := uuid.New()

	client1 := mockClient(hub, tenant1)
	client2 := mockClient(hub, tenant2)

	// Register both clients
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	// Broadcast to tenant1 only
	testPayload := json.RawMessage(`{"order_id":"test-123"}`)
	event := Event{
		Type:    EventOrderCreated,
		Payload: testPayload,
	}
	hub.BroadcastToTenant(tenant1, event)

	// Check client1 receives the message
	select {
	case msg := <-client1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Type != EventOrderCreated {
			t.Errorf("expected type %q, got %q", EventOrderCreated, received.Type)
		}
		if string(received.Payload) != string(testPayload) {
			t.Errorf("expected payload '%s', got '%s'", testPayload, received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 did not receive message")
	}

	// Check client2 does NOT receive the message
	select {
	case <-client2.send:
		t.Fatal("client2 should not have received message for different tenant")
	case <-time.After(50 * time.Millisecond):
		// Expected - no message received
	}
}

func TestBroadcastToMultipleClientsInSameTenant(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	tenantID := uuid.New()
	client1 := mockClient(hub, tenantID)
	client2 := mockClient(hub, tenantID)
	client3 := mockClient(hub, tenantID)

	// Register all clients to same tenant
	hub.register <- client1
	hub.register <- client2
	hub.register <- client3
	time.Sleep(10 * time.Millisecond)

	// Broadcast event
	testPayload := json.RawMessage(`{"status":"READY"}`)
	event := Event{
		Type:    EventOrderStatusChanged,
		Payload: testPayload,
	}
	hub.BroadcastToTenant(tenantID, event)

	// All three clients should receive the message
	clients := []*Client{client1, client2, client3}
	for i, client := range clients {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != EventOrderStatusChanged {
				t.Errorf("client%d: expected type %q, got %q", i+1, EventOrderStatusChanged, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestNewEvent(t *testing.T) {
	event, ok := NewEvent(EventStatsUpdated, map[string]int{"total_orders": 3})
	if !ok {
		t.Fatal("expected event to marshal")
	}
	if event.Type != EventStatsUpdated {
		t.Errorf("type: got %q, want %q", event.Type, EventStatsUpdated)
	}

	var payload map[string]int
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["total_orders"] != 3 {
		t.Errorf("payload total_orders: got %d, want 3", payload["total_orders"])
	}

	// Unmarshalable payload is rejected without panicking
	if _, ok := NewEvent(EventStatsUpdated, func() {}); ok {
		t.Fatal("expected NewEvent to reject unmarshalable payload")
	}
}

func TestHubMultipleTenantsIsolation(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	tenant1 := uuid.New()
	tenant2 := uuid.New()
	tenant3 := uuid.New()

	// Create 2 clients per tenant
	clients := map[uuid.UUID][]*Client{
		tenant1: {mockClient(hub, tenant1), mockClient(hub, tenant1)},
		tenant2: {mockClient(hub, tenant2), mockClient(hub, tenant2)},
		tenant3: {mockClient(hub, tenant3), mockClient(hub, tenant3)},
	}

	// Register all clients
	for _, clientList := range clients {
		for _, client := range clientList {
			hub.register <- client
		}
	}
	time.Sleep(10 * time.Millisecond)

	// Broadcast to tenant2 only
	event := Event{
		Type:    EventStatsUpdated,
		Payload: json.RawMessage(`{"tenant_id":"` + tenant2.String() + `"}`),
	}
	hub.BroadcastToTenant(tenant2, event)
	time.Sleep(10 * time.Millisecond)

	// tenant2's clients receive, the others don't
	for tenantID, clientList := range clients {
		for i, client := range clientList {
			if tenantID == tenant2 {
				select {
				case <-client.send:
				default:
					t.Errorf("tenant2 client%d did not receive message", i+1)
				}
				continue
			}
			select {
			case <-client.send:
				t.Errorf("tenant %s client%d should not have received message", tenantID, i+1)
			default:
			}
		}
	}
}
