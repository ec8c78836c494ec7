package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/tank-monitor/internal/pipeline"
	"github.com/sweeney/tank-monitor/internal/status"
)

func testServer(t *testing.T) (*Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	tracker := status.NewTracker(start, status.Config{
		Device:      "cistern-1",
		TickMs:      500,
		HeartbeatMs: 900000,
		Broker:      "tcp://broker:1883",
		HTTPAddr:    ":8080",
	})
	tracker.RecordCycle(
		pipeline.Snapshot{
			Time:   start.Add(time.Minute),
			Device: "cistern-1",
			Values: map[string]float64{"water_temperature": 21.5},
		},
		[]pipeline.Outcome{
			{Bundle: "temp", Values: map[string]float64{"water_temperature": 21.5}},
			{Bundle: "ph", Err: errors.New("gone"), Stale: true},
		},
	)

	srv := New(":0", tracker, nil)
	srv.now = func() time.Time { return start.Add(2 * time.Minute) }
	return srv, tracker
}

func TestIndexJSON(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.handleJSON(rec, httptest.NewRequest("GET", "/index.json", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}

	var got StatusJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	st := got.Status
	if st.Device != "cistern-1" {
		t.Errorf("device: got %q", st.Device)
	}
	if st.UptimeSeconds != 120 {
		t.Errorf("uptime: got %d, want 120", st.UptimeSeconds)
	}
	if st.Cycles != 1 {
		t.Errorf("cycles: got %d", st.Cycles)
	}
	if st.Values["water_temperature"] != 21.5 {
		t.Errorf("values: got %v", st.Values)
	}
	if len(st.Sensors) != 2 {
		t.Fatalf("got %d sensors, want 2", len(st.Sensors))
	}
	// Tracker sorts by name: ph before temp.
	if !st.Sensors[0].Rebuilding || st.Sensors[0].LastError == "" {
		t.Errorf("failing sensor: %+v", st.Sensors[0])
	}
	if st.Sensors[1].Reads != 1 || st.Sensors[1].LastSuccess == "" {
		t.Errorf("healthy sensor: %+v", st.Sensors[1])
	}
	if st.MQTT.Connected {
		t.Error("mqtt should report disconnected")
	}
	if st.Config.TickMs != 500 || st.Config.Broker != "tcp://broker:1883" {
		t.Errorf("config: %+v", st.Config)
	}
}

func TestIndexHTML(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.handleIndex(rec, httptest.NewRequest("GET", "/", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type: got %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"cistern-1", "water_temperature", "21.5", "temp", "ph"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestIndexNotFound(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.handleIndex(rec, httptest.NewRequest("GET", "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{Device: "tank"})
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	srv := New(":0", tracker, metricsHandler)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Errorf("metrics route: code=%d body=%q", rec.Code, rec.Body.String())
	}

	// Without a handler the route must not exist.
	bare := New(":0", tracker, nil)
	rec = httptest.NewRecorder()
	bare.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled metrics route: got %d, want 404", rec.Code)
	}
}

func TestJSONOmitsEmptyLastCollected(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{Device: "tank"})
	srv := New(":0", tracker, nil)

	rec := httptest.NewRecorder()
	srv.handleJSON(rec, httptest.NewRequest("GET", "/index.json", nil))

	var got map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["status"]["last_collected"]; ok {
		t.Error("last_collected should be omitted before the first cycle")
	}
}
