package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Code-6dof/DXX-Dashboard/internal/event_manager"
	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/gamelog"
	"github.com/Code-6dof/DXX-Dashboard/internal/protocol"
	"github.com/Code-6dof/DXX-Dashboard/internal/registry"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Dependencies) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	deps := &Dependencies{
		Registry:     registry.New(),
		Stores:       events.NewStores(),
		Clients:      gamelog.NewClientManager(),
		EventManager: event_manager.NewEventManager(context.Background(), 100),
		StartTime:    time.Now().Add(-time.Minute),
	}
	t.Cleanup(deps.EventManager.Shutdown)
	return NewRouter(deps), deps
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not JSON: %v: %s", err, w.Body.String())
		}
	}
	return w, decoded
}

func TestStatusEndpoint(t *testing.T) {
	router, deps := newTestRouter(t)
	deps.Registry.UpsertOnRegister(
		&net.UDPAddr{IP: net.ParseIP("203.0.113.7"), Port: 55000},
		protocol.Register{Version: protocol.VersionD1, GamePort: 5000, GameID: 1},
	)

	w, body := doJSON(t, router, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["status"] != "ok" || body["activeGames"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	if body["uptime"].(float64) < 59 {
		t.Errorf("uptime = %v", body["uptime"])
	}
}

func TestMatchEventsUnknownKeyGivesEmptyArrays(t *testing.T) {
	router, _ := newTestRouter(t)
	w, body := doJSON(t, router, http.MethodGet, "/api/events/203.0.113.7:5000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, field := range []string{"killFeed", "chat", "timeline"} {
		arr, ok := body[field].([]interface{})
		if !ok || len(arr) != 0 {
			t.Errorf("%s = %v, want empty array", field, body[field])
		}
	}
}

func TestMatchEventsReturnsStoreContents(t *testing.T) {
	router, deps := newTestRouter(t)
	store := deps.Stores.GetOrCreate("203.0.113.7:5000")
	e := events.New(events.KindKill)
	e.Killer, e.Victim = "alice", "bob"
	store.Append(e)

	w, body := doJSON(t, router, http.MethodGet, "/api/events/203.0.113.7:5000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if arr := body["killFeed"].([]interface{}); len(arr) != 1 {
		t.Errorf("killFeed = %v", arr)
	}
	if _, ok := body["startTime"]; !ok {
		t.Error("startTime missing")
	}
}

func TestMatchEventsRejectsBadKey(t *testing.T) {
	router, _ := newTestRouter(t)
	w, _ := doJSON(t, router, http.MethodGet, "/api/events/banana", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGamelogReplace(t *testing.T) {
	router, deps := newTestRouter(t)
	w, body := doJSON(t, router, http.MethodPost, "/api/gamelog",
		`{"playerName":"alice","content":"You killed bob with Plasma Cannon\n"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, body)
	}
	if body["ok"] != true || body["eventsReceived"] != float64(1) || body["totalClients"] != float64(1) {
		t.Errorf("body = %v", body)
	}

	streams := deps.Clients.Streams()
	if len(streams) != 1 || streams[0].Events[0].Killer != "alice" {
		t.Errorf("streams = %+v", streams)
	}
}

func TestGamelogAppend(t *testing.T) {
	router, _ := newTestRouter(t)
	_, body := doJSON(t, router, http.MethodPost, "/api/gamelog/append",
		`{"playerName":"alice","content":"alice killed bob with Laser\n"}`)
	if body["ok"] != true || body["newEvents"] != float64(1) || body["totalEvents"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	_, body = doJSON(t, router, http.MethodPost, "/api/gamelog/append",
		`{"playerName":"alice","content":"alice killed bob with Laser again oh wait\n"}`)
	if body["totalEvents"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestGamelogMissingFields(t *testing.T) {
	router, _ := newTestRouter(t)
	w, body := doJSON(t, router, http.MethodPost, "/api/gamelog", `{"content":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %v", w.Code, body)
	}
	if _, ok := body["error"]; !ok {
		t.Error("error field missing")
	}
}

func TestUnknownRouteIs404JSON(t *testing.T) {
	router, _ := newTestRouter(t)
	w, body := doJSON(t, router, http.MethodGet, "/api/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body["error"] != "not found" {
		t.Errorf("body = %v", body)
	}
}

func TestOptionsCORS(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 204 {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("CORS header = %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
