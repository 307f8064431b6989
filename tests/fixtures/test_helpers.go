package fixtures

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"usersim/internal/app"
	"usersim/internal/config"
	"usersim/pkg/types"
)

// TestApplication wraps a running application instance with automatic
// shutdown and HTTP conveniences for scenario tests.
type TestApplication struct {
	App     *app.Application
	BaseURL string
	Config  *config.Config
}

// FastEngineConfig returns a configuration tuned so a full study run
// completes in well under a second of wall time.
func FastEngineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Engine.TickInterval = 10 * time.Millisecond
	cfg.Engine.MaxSteps = 4
	cfg.Engine.AnalysisCooldown = 20 * time.Millisecond
	return cfg
}

// StartTestApplication boots a full application on an ephemeral port and
// registers its shutdown with the test cleanup.
func StartTestApplication(t *testing.T, cfg *config.Config) *TestApplication {
	t.Helper()
	if cfg == nil {
		cfg = FastEngineConfig()
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("failed to create application: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("failed to start application: %v", err)
	}

	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = application.Stop(shutdownCtx)
	})

	return &TestApplication{
		App:     application,
		BaseURL: "http://" + application.GetAddr(),
		Config:  cfg,
	}
}

// CreateStudy posts a study and fails the test unless creation succeeds.
func (ta *TestApplication) CreateStudy(t *testing.T, name string, tasks, personas []string) *types.Study {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"name":       name,
		"target_url": "https://example.test/app",
		"tasks":      tasks,
		"personas":   personas,
	})
	if err != nil {
		t.Fatalf("marshal study payload: %v", err)
	}

	resp, err := http.Post(ta.BaseURL+"/api/studies", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("create study request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create study status = %d", resp.StatusCode)
	}

	var created types.Study
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created study: %v", err)
	}
	return &created
}

// RunStudy triggers a study run and returns the response status code.
func (ta *TestApplication) RunStudy(t *testing.T, studyID string) int {
	t.Helper()

	resp, err := http.Post(ta.BaseURL+"/api/studies/"+studyID+"/run", "application/json", nil)
	if err != nil {
		t.Fatalf("run study request failed: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

// GetStudy fetches the full study document.
func (ta *TestApplication) GetStudy(t *testing.T, studyID string) *types.Study {
	t.Helper()

	resp, err := http.Get(ta.BaseURL + "/api/studies/" + studyID)
	if err != nil {
		t.Fatalf("get study request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get study status = %d", resp.StatusCode)
	}

	var study types.Study
	if err := json.NewDecoder(resp.Body).Decode(&study); err != nil {
		t.Fatalf("decode study: %v", err)
	}
	return &study
}

// DeleteStudy deletes a study and returns the response status code.
func (ta *TestApplication) DeleteStudy(t *testing.T, studyID string) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, ta.BaseURL+"/api/studies/"+studyID, nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete study request failed: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

// StudyPhase queries the status endpoint and returns the current phase.
func (ta *TestApplication) StudyPhase(t *testing.T, studyID string) string {
	t.Helper()

	resp, err := http.Get(ta.BaseURL + "/api/studies/" + studyID + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint = %d", resp.StatusCode)
	}

	var status struct {
		Phase string `json:"phase"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return status.Phase
}

// WaitForPhase polls the status endpoint until the study reaches the
// wanted phase or the timeout passes.
func (ta *TestApplication) WaitForPhase(t *testing.T, studyID, phase string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ta.StudyPhase(t, studyID) == phase {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("study %s never reached phase %s", studyID, phase)
}

// ConnectViewer attaches a WebSocket test client to the running server.
func (ta *TestApplication) ConnectViewer(t *testing.T) *TestClient {
	t.Helper()

	client := NewTestClient(ta.BaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("viewer failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// ViewerCount reads the health endpoint's viewer gauge.
func (ta *TestApplication) ViewerCount(t *testing.T) int {
	t.Helper()

	resp, err := http.Get(ta.BaseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var health struct {
		Viewers int `json:"viewers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return health.Viewers
}

// WaitForViewerCount polls the health endpoint until the viewer gauge
// matches.
func (ta *TestApplication) WaitForViewerCount(t *testing.T, want int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ta.ViewerCount(t) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("viewer count never reached %d (last: %d)", want, ta.ViewerCount(t))
}

// RawUpgradeRequest issues a crafted upgrade request and returns the
// response, for handshake failure tests that a real client cannot drive.
func (ta *TestApplication) RawUpgradeRequest(t *testing.T, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, ta.BaseURL+"/ws", nil)
	if err != nil {
		t.Fatalf("build upgrade request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upgrade request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// Addr formats the ws:// URL of the running server, used by tests that
// dial the socket by hand.
func (ta *TestApplication) WebSocketURL() string {
	return fmt.Sprintf("ws://%s/ws", ta.App.GetAddr())
}
