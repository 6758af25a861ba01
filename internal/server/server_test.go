package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/conn"
	"github.com/wardflow/tanksentry/internal/telemetry"
	"github.com/wardflow/tanksentry/pkg/models"
)

type fakeSource []telemetry.ClassifiedReading

func (f fakeSource) Snapshot() []telemetry.ClassifiedReading { return f }

type fakeChannel struct {
	state    conn.State
	identity string
}

func (f fakeChannel) State() conn.State { return f.state }
func (f fakeChannel) Identity() string  { return f.identity }

func newTestServer(t *testing.T, source TelemetrySource, channel ChannelSource, ready ReadinessChecker) *httptest.Server {
	t.Helper()
	s := New("127.0.0.1:0", source, channel, zap.NewNop(), ready)
	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "alive" {
		t.Errorf("status field = %q, want alive", body["status"])
	}
}

func TestReadyz_NotReady(t *testing.T) {
	ready := func(context.Context) error { return errors.New("store unavailable") }
	srv := newTestServer(t, nil, nil, ready)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/readyz", &body)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if body["error"] != "store unavailable" {
		t.Errorf("error field = %q", body["error"])
	}
}

func TestReadyz_Ready(t *testing.T) {
	srv := newTestServer(t, nil, nil, func(context.Context) error { return nil })

	resp := getJSON(t, srv.URL+"/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHealth_ReportsVersion(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	var body HealthResponse
	getJSON(t, srv.URL+"/api/v1/health", &body)
	if body.Service != "tanksentry" {
		t.Errorf("service = %q, want tanksentry", body.Service)
	}
	if body.Version["version"] == "" {
		t.Error("version map missing version field")
	}
}

func TestStatus_ReportsChannelAndTanks(t *testing.T) {
	source := fakeSource{
		{
			SensorReading: models.SensorReading{
				ResourceID: "TANK-1",
				Timestamp:  time.Now().UTC(),
				Metrics:    map[string]float64{models.MetricPH: 7.1},
			},
			Tier: models.TierHealthy,
		},
	}
	channel := fakeChannel{state: conn.StateConnected, identity: "dash-1"}
	srv := newTestServer(t, source, channel, nil)

	var body StatusResponse
	resp := getJSON(t, srv.URL+"/api/v1/status", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Channel.State != "connected" || body.Channel.Identity != "dash-1" {
		t.Errorf("channel = %+v", body.Channel)
	}
	if len(body.Tanks) != 1 || body.Tanks[0].ResourceID != "TANK-1" {
		t.Errorf("tanks = %+v", body.Tanks)
	}
	if body.Tanks[0].Tier != models.TierHealthy {
		t.Errorf("tier = %q, want healthy", body.Tanks[0].Tier)
	}
}

func TestStatus_NilSourcesDegradeGracefully(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	var body StatusResponse
	getJSON(t, srv.URL+"/api/v1/status", &body)
	if body.Channel.State != "idle" {
		t.Errorf("channel state = %q, want idle", body.Channel.State)
	}
	if body.Tanks == nil || len(body.Tanks) != 0 {
		t.Errorf("tanks = %v, want empty slice", body.Tanks)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	resp := getJSON(t, srv.URL+"/api/v1/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
