package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"sp500-backtest/services/arrowpipeline"
	"sp500-backtest/services/config"
	"sp500-backtest/services/engine"
	"sp500-backtest/services/journal"
	"sp500-backtest/services/marketdata"
)

type memSource map[string][]engine.Bar

func (m memSource) Load(_ context.Context, asset string) ([]engine.Bar, error) {
	bars, ok := m[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", marketdata.ErrUnknownAsset, asset)
	}
	return bars, nil
}

func closes(cs ...int64) []engine.Bar {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]engine.Bar, len(cs))
	for i, c := range cs {
		p := decimal.NewFromInt(c)
		out[i] = engine.Bar{
			Date:   day.AddDate(0, 0, i),
			Open:   p,
			High:   p.Add(decimal.NewFromInt(1)),
			Low:    p.Sub(decimal.NewFromInt(1)),
			Close:  p,
			Volume: decimal.NewFromInt(1000),
		}
	}
	return out
}

type failingSink struct{}

func (failingSink) Name() string { return "sheets" }

func (failingSink) Export(context.Context, journal.Record) error {
	return errors.New("credentials missing")
}

type countingSink struct{ records []journal.Record }

func (c *countingSink) Name() string { return "memory" }

func (c *countingSink) Export(_ context.Context, rec journal.Record) error {
	c.records = append(c.records, rec)
	return nil
}

func newTestService(t *testing.T, exporters ...journal.Exporter) (*Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	unordered := closes(100, 105, 95, 110)
	unordered[3].Date = unordered[1].Date
	settings := &config.Settings{
		Filters:             map[string]bool{"BOS": true},
		StartingCapital:     10000,
		RiskPerTradePercent: 1,
		Asset:               "SPX",
	}
	svc := NewService(settings, Deps{
		Source: memSource{
			"SPX":    closes(100, 105, 95, 110),
			"EURUSD": unordered,
		},
		Exporters: exporters,
	})
	return svc, svc.NewRouter()
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) BacktestResponse {
	t.Helper()
	var resp BacktestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return resp
}

func TestPostBacktest(t *testing.T) {
	_, r := newTestService(t)
	w := do(r, http.MethodPost, "/api/v1/backtest", `{"asset":"SPX"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp.RunID == "" || resp.Rule != engine.RuleBreakOfStructure {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !resp.Summary.TotalPnL.Equal(decimal.NewFromInt(-15)) || resp.Summary.TotalTrades != 2 || resp.Summary.WinRate != 0 {
		t.Fatalf("summary %+v", resp.Summary)
	}
	if len(resp.Equity) != 2 || !resp.Equity[0].Equity.Equal(decimal.NewFromInt(9985)) {
		t.Fatalf("equity %+v", resp.Equity)
	}
	if !resp.Equity[0].Date.Equal(resp.Trades[0].Date) {
		t.Fatal("first equity point must sit on the first evaluated bar")
	}
	if resp.JournalNotices == nil || len(resp.JournalNotices) != 0 {
		t.Fatalf("notices %v", resp.JournalNotices)
	}

	w = do(r, http.MethodGet, "/api/v1/backtest/"+resp.RunID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status %d", w.Code)
	}
	if got := decode(t, w); got.RunID != resp.RunID || !got.Summary.TotalPnL.Equal(resp.Summary.TotalPnL) {
		t.Fatalf("stored run differs: %+v", got)
	}
}

func TestPostBacktestOverrides(t *testing.T) {
	_, r := newTestService(t)
	w := do(r, http.MethodPost, "/api/v1/backtest", `{"filters":{"FVG":true},"starting_capital":500,"risk_per_trade_percent":9,"multi_tp":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp.Rule != engine.RuleNone || resp.Summary.TotalTrades != 0 {
		t.Fatalf("fvg-only must not trade: %+v", resp)
	}
	if !resp.Config.StartingCapital.Equal(decimal.NewFromInt(500)) || !resp.Config.MultiTakeProfit || resp.Config.RiskPerTradePct != 9 {
		t.Fatalf("overrides not applied: %+v", resp.Config)
	}
}

func TestPostBacktestErrors(t *testing.T) {
	_, r := newTestService(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{"asset":`, http.StatusBadRequest},
		{"negative capital", `{"starting_capital":-5}`, http.StatusBadRequest},
		{"negative risk", `{"risk_per_trade_percent":-1}`, http.StatusBadRequest},
		{"unknown filter", `{"filters":{"RSI":true}}`, http.StatusBadRequest},
		{"unknown asset", `{"asset":"GOLD"}`, http.StatusNotFound},
		{"unordered series", `{"asset":"EURUSD"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/backtest", tc.body)
			if w.Code != tc.want {
				t.Fatalf("status %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestJournalNotices(t *testing.T) {
	sink := &countingSink{}
	_, r := newTestService(t, failingSink{}, sink)
	w := do(r, http.MethodPost, "/api/v1/backtest", `{"journal":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("journal failure must not fail the run: %d", w.Code)
	}
	resp := decode(t, w)
	if len(resp.JournalNotices) != 1 || resp.JournalNotices[0].Sink != "sheets" {
		t.Fatalf("notices %+v", resp.JournalNotices)
	}
	if len(sink.records) != 1 || sink.records[0].RunID != resp.RunID || len(sink.records[0].Trades) != 2 {
		t.Fatalf("healthy sink got %+v", sink.records)
	}
	if !resp.Summary.TotalPnL.Equal(decimal.NewFromInt(-15)) {
		t.Fatal("journal must not alter the summary")
	}

	w = do(r, http.MethodGet, "/api/v1/backtest/"+resp.RunID, "")
	if got := decode(t, w); len(got.JournalNotices) != 1 {
		t.Fatalf("stored notices %+v", got.JournalNotices)
	}
}

func TestGetUnknownRun(t *testing.T) {
	_, r := newTestService(t)
	if w := do(r, http.MethodGet, "/api/v1/backtest/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/backtest/nope/series.arrow", ""); w.Code != http.StatusNotFound {
		t.Fatalf("arrow status %d", w.Code)
	}
}

func TestSeriesArrow(t *testing.T) {
	_, r := newTestService(t)
	resp := decode(t, do(r, http.MethodPost, "/api/v1/backtest", `{}`))
	w := do(r, http.MethodGet, "/api/v1/backtest/"+resp.RunID+"/series.arrow", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != arrowStreamType {
		t.Fatalf("status %d type %q", w.Code, w.Header().Get("Content-Type"))
	}
	series, err := arrowpipeline.NewPipeline(arrowpipeline.Config{}, nil).ConvertFromArrow(w.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 2 || !series[1].Equity.Equal(decimal.NewFromInt(9985)) {
		t.Fatalf("series %+v", series)
	}
}

func TestHealthAssetsAndMetrics(t *testing.T) {
	_, r := newTestService(t)
	for _, path := range []string{"/api/v1/health", "/api/v1/assets", "/metrics", "/api/v1/metrics"} {
		if w := do(r, http.MethodGet, path, ""); w.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, w.Code)
		}
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	s := NewStore(2)
	for _, id := range []string{"a", "b", "c"} {
		s.Put(&Run{ID: id})
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("oldest run should be evicted")
	}
	if _, ok := s.Get("c"); !ok || s.Len() != 2 {
		t.Fatalf("store len %d", s.Len())
	}
}
