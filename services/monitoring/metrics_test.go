package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"sp500-backtest/services/engine"
)

func TestObserveRun(t *testing.T) {
	m := New()
	res := &engine.Result{
		Rule: engine.RuleBreakOfStructure,
		Trades: []engine.Trade{
			{Direction: engine.Short, PnL: decimal.NewFromInt(-15)},
			{Direction: engine.Long},
			{Direction: engine.Long},
		},
	}
	m.ObserveRun("SPX", res, 3*time.Millisecond)
	m.ObserveRun("GOLD", nil, time.Millisecond)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("SPX", "break_of_structure", "ok")); got != 1 {
		t.Fatalf("ok runs = %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("GOLD", "", "error")); got != 1 {
		t.Fatalf("failed runs = %v", got)
	}
	if got := testutil.ToFloat64(m.TradesTotal.WithLabelValues("SPX", "Long")); got != 2 {
		t.Fatalf("long trades = %v", got)
	}
}

func TestObserveRunFoldsUnknownAssets(t *testing.T) {
	m := New()
	for _, name := range []string{"DOGE", "../etc/passwd", "spx"} {
		m.ObserveRun(name, nil, time.Millisecond)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(OtherAsset, "", "error")); got != 3 {
		t.Fatalf("other runs = %v", got)
	}
	if n := testutil.CollectAndCount(m.RunsTotal); n != 1 {
		t.Fatalf("runs_total has %d series, want 1", n)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ping", "200")); got != 1 {
		t.Fatalf("ping count = %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched count = %v", got)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "backtest_http_requests_total") {
		t.Fatalf("metrics body missing counters: %d", w.Code)
	}
}
