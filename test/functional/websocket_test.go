//go:build functional

package functional

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// EventMessage represents a message broadcast on a list channel.
type EventMessage struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// dialList opens a websocket subscription on the given list channel.
func dialList(t *testing.T, ts *TestServer, listID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(ts.WSURL+"/ws/lists/"+listID, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// readEvent reads the next event from the connection, failing the test
// if none arrives within the websocket timeout.
func readEvent(t *testing.T, conn *websocket.Conn) *EventMessage {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(DefaultWebSocketTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var msg EventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return &msg
}

// TestFunctional_WS_001_ItemCreatedEvent tests that creating an item over
// REST reaches a subscriber on the list channel.
// FT-WS-001: WebSocket - ITEM_CREATED delivery
func TestFunctional_WS_001_ItemCreatedEvent(t *testing.T) {
	LogTestStart(t, "FT-WS-001", "WebSocket - ITEM_CREATED delivery")
	defer LogTestEnd(t, "FT-WS-001")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	list := MustCreateList(t, client, nil, "Groceries")

	conn := dialList(t, ts, list.ID)

	// Act
	MustCreateItem(t, client, nil, list.ID, CreateItemRequest{Name: "Milk"})

	// Assert
	msg := readEvent(t, conn)
	if msg.EventType != "ITEM_CREATED" {
		t.Errorf("Expected event ITEM_CREATED, got %s", msg.EventType)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Expected event timestamp to be set")
	}

	var item ItemResponse
	if err := json.Unmarshal(msg.Data, &item); err != nil {
		t.Fatalf("Failed to parse event payload: %v", err)
	}
	if item.Name != "Milk" {
		t.Errorf("Expected payload name Milk, got %s", item.Name)
	}
}

// TestFunctional_WS_002_UnknownListRejectedBeforeUpgrade tests that a
// subscription to an unknown list is answered before the upgrade.
// FT-WS-002: WebSocket - unknown list
func TestFunctional_WS_002_UnknownListRejectedBeforeUpgrade(t *testing.T) {
	LogTestStart(t, "FT-WS-002", "WebSocket - unknown list")
	defer LogTestEnd(t, "FT-WS-002")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	// Act
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"/ws/lists/no-such-list", nil)

	// Assert - handshake fails with 204 instead of upgrading
	if err == nil {
		conn.Close()
		t.Fatal("Expected handshake to fail for unknown list")
	}
	if resp == nil {
		t.Fatal("Expected handshake response")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
}

// TestFunctional_WS_003_LifecycleEvents tests the archive and destroy
// notifications emitted by item deletion.
// FT-WS-003: WebSocket - ITEM_ARCHIVED and ITEM_DESTROYED
func TestFunctional_WS_003_LifecycleEvents(t *testing.T) {
	LogTestStart(t, "FT-WS-003", "WebSocket - ITEM_ARCHIVED and ITEM_DESTROYED")
	defer LogTestEnd(t, "FT-WS-003")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	list := MustCreateList(t, client, nil, "Groceries")
	item := MustCreateItem(t, client, nil, list.ID, CreateItemRequest{Name: "Milk"})
	itemPath := "/api/v1/lists/" + list.ID + "/items/" + item.ID

	conn := dialList(t, ts, list.ID)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	// Act - archive
	resp, err := client.Delete(ctx, itemPath, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusOK)

	// Assert
	msg := readEvent(t, conn)
	if msg.EventType != "ITEM_ARCHIVED" {
		t.Errorf("Expected event ITEM_ARCHIVED, got %s", msg.EventType)
	}

	// Act - purge
	resp, err = client.Delete(ctx, itemPath+"?purge=true", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusNoContent)

	// Assert
	msg = readEvent(t, conn)
	if msg.EventType != "ITEM_DESTROYED" {
		t.Errorf("Expected event ITEM_DESTROYED, got %s", msg.EventType)
	}
}

// TestFunctional_WS_004_BatchUpdateEvent tests that a batch edit emits a
// single ITEMS_UPDATED event.
// FT-WS-004: WebSocket - ITEMS_UPDATED on batch edit
func TestFunctional_WS_004_BatchUpdateEvent(t *testing.T) {
	LogTestStart(t, "FT-WS-004", "WebSocket - ITEMS_UPDATED on batch edit")
	defer LogTestEnd(t, "FT-WS-004")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	list := MustCreateList(t, client, nil, "Groceries")
	first := MustCreateItem(t, client, nil, list.ID, CreateItemRequest{Name: "Milk"})
	second := MustCreateItem(t, client, nil, list.ID, CreateItemRequest{Name: "Eggs"})

	conn := dialList(t, ts, list.ID)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()

	// Act
	resp, err := client.Put(ctx, "/api/v1/lists/"+list.ID+"/items", BatchUpdateRequest{
		ItemIDs: []string{first.ID, second.ID},
		Edits:   UpdateItemRequest{DesiredState: strPtr("bought")},
	}, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusOK)

	// Assert
	msg := readEvent(t, conn)
	if msg.EventType != "ITEMS_UPDATED" {
		t.Errorf("Expected event ITEMS_UPDATED, got %s", msg.EventType)
	}

	var items []ItemResponse
	if err := json.Unmarshal(msg.Data, &items); err != nil {
		t.Fatalf("Failed to parse event payload: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 items in payload, got %d", len(items))
	}
}

// TestFunctional_WS_005_EventsScopedToList tests that events stay on the
// channel of the list they belong to.
// FT-WS-005: WebSocket - channel scoping
func TestFunctional_WS_005_EventsScopedToList(t *testing.T) {
	LogTestStart(t, "FT-WS-005", "WebSocket - channel scoping")
	defer LogTestEnd(t, "FT-WS-005")

	ts := NewTestServer(t)
	ts.Start()
	defer ts.Stop()

	client := NewHTTPClient(t, ts.BaseURL)
	groceries := MustCreateList(t, client, nil, "Groceries")
	hardware := MustCreateList(t, client, nil, "Hardware")

	conn := dialList(t, ts, hardware.ID)

	// Act - mutate the other list
	MustCreateItem(t, client, nil, groceries.ID, CreateItemRequest{Name: "Milk"})

	// Assert - nothing arrives on this channel
	if err := conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var msg EventMessage
	if err := conn.ReadJSON(&msg); err == nil {
		t.Errorf("Received event %s on a foreign channel", msg.EventType)
	}
}
