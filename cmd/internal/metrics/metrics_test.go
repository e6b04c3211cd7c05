package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"authgate/cmd/internal/auth/session"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_SessionEvents(t *testing.T) {
	r := New(nil)

	r.SessionCreated()
	r.SessionCreated()
	r.SessionsRevoked("logout_all", 3)
	r.SessionsRevoked("logout", 0)
	r.RotationResult(session.RotationOK)
	r.Discrepancy("revoke")
	r.CacheRebuilt(7)

	if got := testutil.ToFloat64(r.sessionsCreated); got != 2 {
		t.Fatalf("created=%v", got)
	}
	if got := testutil.ToFloat64(r.sessionsRevoked.WithLabelValues("logout_all")); got != 3 {
		t.Fatalf("revoked=%v", got)
	}
	if got := testutil.ToFloat64(r.rotations.WithLabelValues("ok")); got != 1 {
		t.Fatalf("rotations=%v", got)
	}
	if got := testutil.ToFloat64(r.discrepancies.WithLabelValues("revoke")); got != 1 {
		t.Fatalf("discrepancies=%v", got)
	}
	if got := testutil.ToFloat64(r.lastRebuildSize); got != 7 {
		t.Fatalf("rebuild size=%v", got)
	}
}

func TestRegistry_GateAndHTTP(t *testing.T) {
	r := New(nil)
	r.ObserveDecision("proceed", "", true)
	r.ObserveRequest(http.MethodGet, http.StatusSeeOther, 3*time.Millisecond)

	if got := testutil.ToFloat64(r.gateDecisions.WithLabelValues("proceed", "none", "true")); got != 1 {
		t.Fatalf("decisions=%v", got)
	}
	if n := testutil.CollectAndCount(r.requestDuration); n != 1 {
		t.Fatalf("request series=%d", n)
	}
}

func TestRegistry_HandlerExposesCacheStats(t *testing.T) {
	cache := session.NewCache()
	cache.Add("s1", "u1")
	cache.Add("s2", "u1")
	_ = cache.IsActive("s1")

	r := New(cache)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"authgate_session_cache_active_sessions 2",
		"authgate_session_cache_hits_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{101: "1xx", 200: "2xx", 303: "3xx", 401: "4xx", 503: "5xx"}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Fatalf("statusClass(%d)=%s, want %s", code, got, want)
		}
	}
}
