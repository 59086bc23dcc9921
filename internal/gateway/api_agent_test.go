package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docsmithhq/docsmith-agent/internal/config"
	"github.com/docsmithhq/docsmith-agent/internal/scheduler"
)

type agentStatusResponse struct {
	Status     PipelineStatus `json:"status"`
	AIEngine   string         `json:"ai_engine"`
	AIFallback bool           `json:"ai_fallback"`
	Profile    string         `json:"profile"`
}

func TestAgentStatus(t *testing.T) {
	gw := newTestGateway(t)

	rr := do(t, gw, http.MethodGet, "/api/agent")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp agentStatusResponse
	decode(t, rr, &resp)
	if resp.AIEngine != "none" {
		t.Errorf("ai engine = %q, want none with nothing configured", resp.AIEngine)
	}
	if resp.Profile != "technical" {
		t.Errorf("profile = %q", resp.Profile)
	}
	if resp.Status.Workers != 2 {
		t.Errorf("workers = %d", resp.Status.Workers)
	}
}

func TestAgentPauseResume(t *testing.T) {
	gw := newTestGateway(t)

	rr := doJSON(t, gw, http.MethodPost, "/api/agent/pause", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pause: status = %d", rr.Code)
	}
	var st PipelineStatus
	decode(t, do(t, gw, http.MethodGet, "/api/status"), &st)
	if !st.Paused {
		t.Error("status not paused after POST /api/agent/pause")
	}

	rr = doJSON(t, gw, http.MethodPost, "/api/agent/resume", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("resume: status = %d", rr.Code)
	}
	decode(t, do(t, gw, http.MethodGet, "/api/status"), &st)
	if st.Paused {
		t.Error("status still paused after resume")
	}
}

func TestAgentWorkers(t *testing.T) {
	gw := newTestGateway(t)

	for _, n := range []int{0, -3, 65} {
		rr := doJSON(t, gw, http.MethodPut, "/api/agent/workers", map[string]any{"workers": n})
		if rr.Code != http.StatusBadRequest || errorMsg(t, rr) != "workers must be between 1 and 64" {
			t.Errorf("workers=%d: status = %d body = %s", n, rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, gw, http.MethodPut, "/api/agent/workers", map[string]any{"workers": 8})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var st PipelineStatus
	decode(t, do(t, gw, http.MethodGet, "/api/status"), &st)
	if st.Workers != 8 {
		t.Errorf("workers = %d, want 8", st.Workers)
	}
	if gw.cfg.Scheduler.Workers != 8 {
		t.Errorf("config workers = %d, want 8", gw.cfg.Scheduler.Workers)
	}
}

func TestAgentHealth(t *testing.T) {
	gw := newTestGateway(t)

	rr := do(t, gw, http.MethodGet, "/api/agent/health")
	var hs HeartbeatStatus
	decode(t, rr, &hs)
	if hs.Status != "idle" || hs.ActiveJobs != 0 {
		t.Errorf("fresh gateway health = %+v, want idle", hs)
	}
	if hs.LastActivityAt != "" {
		t.Errorf("last activity = %q before any event", hs.LastActivityAt)
	}
	if hs.Message == "" {
		t.Error("health carries no message")
	}

	gw.onSchedulerEvent(scheduler.Event{Type: scheduler.EventJobEnqueued, RepoID: 1, JobID: 1})
	decode(t, do(t, gw, http.MethodGet, "/api/agent/health"), &hs)
	if hs.LastActivityAt == "" {
		t.Fatal("scheduler event did not record activity")
	}
	if _, err := time.Parse(time.RFC3339, hs.LastActivityAt); err != nil {
		t.Errorf("last activity %q is not RFC3339: %v", hs.LastActivityAt, err)
	}

	gw.sched.Pause()
	decode(t, do(t, gw, http.MethodGet, "/api/agent/health"), &hs)
	if hs.Status != "paused" {
		t.Errorf("health after pause = %q", hs.Status)
	}
}

func TestHealthBroadcastOnTransitionOnly(t *testing.T) {
	gw := newTestGateway(t)
	_, ch, _ := gw.broadcaster.subscribe()

	gw.heartbeat.evaluate()
	gw.heartbeat.evaluate()
	types := frameTypes(ch)
	n := 0
	for _, typ := range types {
		if typ == "agent.health" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("agent.health frames = %d after repeated idle evaluations, want 1", n)
	}

	gw.sched.Pause()
	gw.heartbeat.evaluate()
	types = frameTypes(ch)
	n = 0
	for _, typ := range types {
		if typ == "agent.health" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("agent.health frames = %d after pause transition, want 1", n)
	}
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	gw := newTestGatewayWith(t, func(c *config.Config) {
		c.AI.APIKey = "0123456789abcdef"
		c.AI.AnthropicKey = "sk-tiny"
		c.Git.GitHub = []config.GitHubConfig{{Host: "github.com", Token: "ghp_abcdefgh1234"}}
		c.Notify.Webhook.Secret = "notify-hook-secret"
	})

	rr := do(t, gw, http.MethodGet, "/api/config")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Path   string        `json:"path"`
		Config config.Config `json:"config"`
	}
	decode(t, rr, &resp)

	if got := resp.Config.AI.APIKey; got != "0123********cdef" {
		t.Errorf("api key = %q", got)
	}
	if got := resp.Config.AI.AnthropicKey; got != "********" {
		t.Errorf("short key = %q, want fully masked", got)
	}
	if got := resp.Config.Webhooks.Secret; got != "********" {
		t.Errorf("webhook secret = %q", got)
	}
	if got := resp.Config.Git.GitHub[0].Token; strings.Count(got, "*") == 0 {
		t.Errorf("github token = %q, want masked", got)
	}
	if got := resp.Config.Notify.Webhook.Secret; !strings.Contains(got, "****") {
		t.Errorf("notify secret = %q, want masked", got)
	}

	// Redaction must not leak back into the live config.
	if gw.cfg.AI.APIKey != "0123456789abcdef" {
		t.Errorf("live api key mutated: %q", gw.cfg.AI.APIKey)
	}
	if gw.cfg.Git.GitHub[0].Token != "ghp_abcdefgh1234" {
		t.Errorf("live github token mutated: %q", gw.cfg.Git.GitHub[0].Token)
	}
}

func TestPutConfigPreservesMaskedSecrets(t *testing.T) {
	gw := newTestGatewayWith(t, func(c *config.Config) {
		c.AI.APIKey = "0123456789abcdef"
		c.Database.Path = "/var/lib/docsmith/docsmith.db"
	})

	var resp struct {
		Config config.Config `json:"config"`
	}
	decode(t, do(t, gw, http.MethodGet, "/api/config"), &resp)

	// Edit one field and send the redacted view back, as a UI would.
	next := resp.Config
	next.AI.Model = "llama3"
	next.Notify.Webhook.URL = "https://hooks.example.com/docsmith"
	rr := doJSON(t, gw, http.MethodPut, "/api/config", next)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	if gw.cfg.AI.Model != "llama3" {
		t.Errorf("model = %q, want llama3", gw.cfg.AI.Model)
	}
	if gw.cfg.AI.APIKey != "0123456789abcdef" {
		t.Errorf("masked api key overwrote the real one: %q", gw.cfg.AI.APIKey)
	}
	if gw.cfg.Webhooks.Secret != "hush" {
		t.Errorf("masked webhook secret overwrote the real one: %q", gw.cfg.Webhooks.Secret)
	}
	if gw.cfg.Scheduler.Workers != 2 {
		t.Errorf("workers = %d, want defaulted 2", gw.cfg.Scheduler.Workers)
	}
	if gw.cfg.Database.Path != "/var/lib/docsmith/docsmith.db" {
		t.Errorf("database section lost: %+v", gw.cfg.Database)
	}
	if !gw.currentNotifier().IsAnyConfigured() {
		t.Error("dispatcher not rebuilt with the new webhook channel")
	}
}

func TestNotifyTest(t *testing.T) {
	gw := newTestGateway(t)
	rr := doJSON(t, gw, http.MethodPost, "/api/config/test-notification", nil)
	if rr.Code != http.StatusBadRequest || errorMsg(t, rr) != "no notification channels configured" {
		t.Errorf("no channels: status = %d body = %s", rr.Code, rr.Body.String())
	}

	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw = newTestGatewayWith(t, func(c *config.Config) {
		c.Notify.Webhook.URL = srv.URL
	})
	rr = doJSON(t, gw, http.MethodPost, "/api/config/test-notification", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("webhook deliveries = %d, want 1", len(bodies))
	}
	if !strings.Contains(bodies[0], "test") {
		t.Errorf("delivery body = %s", bodies[0])
	}
}

func TestListProfiles(t *testing.T) {
	gw := newTestGateway(t)

	rr := do(t, gw, http.MethodGet, "/api/profiles")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var list []profileSummary
	decode(t, rr, &list)
	if len(list) < 2 {
		t.Fatalf("profiles = %+v, want at least the bundled pair", list)
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Errorf("profiles not sorted: %q before %q", list[i-1].Name, list[i].Name)
		}
	}
	byName := map[string]profileSummary{}
	for _, p := range list {
		byName[p.Name] = p
	}
	tech, ok := byName["technical"]
	if !ok || !tech.Bundled {
		t.Fatalf("bundled technical profile missing: %+v", list)
	}
	if !tech.Active {
		t.Error("configured profile not flagged active")
	}
	if mkt := byName["marketing"]; mkt.Active {
		t.Error("inactive profile flagged active")
	}
}

func TestGetProfile(t *testing.T) {
	gw := newTestGateway(t)

	rr := do(t, gw, http.MethodGet, "/api/profiles/technical")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var p struct {
		Name    string `json:"name"`
		Body    string `json:"body"`
		Bundled bool   `json:"bundled"`
		Active  bool   `json:"active"`
	}
	decode(t, rr, &p)
	if p.Name != "technical" || !p.Bundled || !p.Active {
		t.Errorf("profile = %+v", p)
	}
	if p.Body == "" {
		t.Error("profile body is empty")
	}

	rr = do(t, gw, http.MethodGet, "/api/profiles/nope")
	if rr.Code != http.StatusNotFound || errorMsg(t, rr) != "profile not found" {
		t.Errorf("missing profile: status = %d body = %s", rr.Code, rr.Body.String())
	}
}
