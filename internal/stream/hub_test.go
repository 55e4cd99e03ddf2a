package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"crowdsale-engine/internal/domain"
)

func dialTestHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastToSubscriber(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialTestHub(t, srv)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Emit(context.Background(), &domain.SaleEvent{
		EventID:        "e1",
		Sequence:       1,
		Type:           domain.EventBuy,
		Timestamp:      1704067200000,
		Buyer:          domain.Address{2},
		Amount:         domain.Units(100),
		CurrencyAmount: domain.Units(100),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var got WireEvent
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.EventID != "e1" || got.Sequence != 1 {
		t.Errorf("unexpected identity: %+v", got)
	}
	if got.Type != "BUY" {
		t.Errorf("Type = %q, want BUY", got.Type)
	}
	if got.Buyer != (domain.Address{2}).String() {
		t.Errorf("Buyer = %q", got.Buyer)
	}
	if got.Amount != domain.Units(100).Dec() {
		t.Errorf("Amount = %q", got.Amount)
	}
}

func TestHub_BroadcastOrder(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialTestHub(t, srv)
	defer conn.Close()
	waitForClients(t, hub, 1)

	for seq := uint64(1); seq <= 5; seq++ {
		hub.Emit(context.Background(), &domain.SaleEvent{
			EventID:  "e",
			Sequence: seq,
			Type:     domain.EventTransfer,
		})
	}

	for seq := uint64(1); seq <= 5; seq++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d failed: %v", seq, err)
		}
		var got WireEvent
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if got.Sequence != seq {
			t.Fatalf("out of order: got sequence %d, want %d", got.Sequence, seq)
		}
	}
}

func TestHub_MultipleClients(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn1 := dialTestHub(t, srv)
	defer conn1.Close()
	conn2 := dialTestHub(t, srv)
	defer conn2.Close()
	waitForClients(t, hub, 2)

	hub.Emit(context.Background(), &domain.SaleEvent{
		EventID:  "e1",
		Sequence: 1,
		Type:     domain.EventFinalize,
	})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var got WireEvent
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if got.Type != "FINALIZE" {
			t.Errorf("Type = %q, want FINALIZE", got.Type)
		}
	}
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(nil, nil, nil)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialTestHub(t, srv)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Close()
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount after Close = %d, want 0", n)
	}

	// Peer observes the connection going away.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read error after hub close")
	}
}

func TestWireEvent_OmitsEmptyFields(t *testing.T) {
	payload, err := json.Marshal(wireEvent(&domain.SaleEvent{
		EventID:   "e1",
		Sequence:  1,
		Type:      domain.EventWhitelistChanged,
		Timestamp: 1000,
		Subject:   domain.Address{3},
		Status:    domain.WhitelistApproved,
	}))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	s := string(payload)
	for _, field := range []string{"from", "buyer", "amount", "currency_amount"} {
		if strings.Contains(s, `"`+field+`"`) {
			t.Errorf("payload should omit %q: %s", field, s)
		}
	}
	if !strings.Contains(s, `"subject"`) || !strings.Contains(s, `"status":"APPROVED"`) {
		t.Errorf("payload missing whitelist fields: %s", s)
	}
}
