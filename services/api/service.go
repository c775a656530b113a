// Package api serves backtests over HTTP for the dashboard and scripts.
package api

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sp500-backtest/services/arrowpipeline"
	"sp500-backtest/services/config"
	"sp500-backtest/services/engine"
	"sp500-backtest/services/journal"
	"sp500-backtest/services/marketdata"
	"sp500-backtest/services/monitoring"
)

// BacktestRequest overrides the loaded settings for one run. Omitted fields
// keep their configured values.
type BacktestRequest struct {
	Asset               string          `json:"asset"`
	Filters             map[string]bool `json:"filters"`
	StartingCapital     *float64        `json:"starting_capital"`
	RiskPerTradePercent *float64        `json:"risk_per_trade_percent"`
	MultiTP             *bool           `json:"multi_tp"`
	NewsFilter          *bool           `json:"news_filter"`
	Journal             bool            `json:"journal"`
}

type EquityPoint struct {
	Date   time.Time       `json:"date"`
	Equity decimal.Decimal `json:"equity"`
}

type BacktestResponse struct {
	RunID          string           `json:"run_id"`
	Asset          string           `json:"asset"`
	Rule           engine.RuleKind  `json:"rule"`
	Config         engine.RunConfig `json:"config"`
	Summary        engine.Summary   `json:"summary"`
	Trades         []engine.Trade   `json:"trades"`
	Equity         []EquityPoint    `json:"equity"`
	JournalNotices []journal.Notice `json:"journal_notices"`
}

// Deps are the collaborators of a Service. Only Source is required.
type Deps struct {
	Source    marketdata.Source
	Exporters []journal.Exporter
	Pipeline  *arrowpipeline.Pipeline
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
	Store     *Store
}

// Service runs backtests against the configured source and remembers them
type Service struct {
	settings  config.Settings
	source    marketdata.Source
	engine    *engine.Engine
	store     *Store
	exporters []journal.Exporter
	pipeline  *arrowpipeline.Pipeline
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

func NewService(settings *config.Settings, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Store == nil {
		deps.Store = NewStore(DefaultStoreLimit)
	}
	if deps.Pipeline == nil {
		deps.Pipeline = arrowpipeline.NewPipeline(arrowpipeline.Config{}, deps.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.New()
	}
	return &Service{
		settings:  *settings,
		source:    deps.Source,
		engine:    engine.New(deps.Logger),
		store:     deps.Store,
		exporters: deps.Exporters,
		pipeline:  deps.Pipeline,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// RequestError is a client-side problem with a backtest request
type RequestError struct {
	Status int
	Err    error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

// settingsFor applies the request overrides to a copy of the service settings
func (s *Service) settingsFor(req BacktestRequest) (config.Settings, error) {
	st := s.settings
	st.Filters = maps.Clone(s.settings.Filters)
	if req.Asset != "" {
		st.Asset = req.Asset
	}
	if req.Filters != nil {
		st.Filters = maps.Clone(req.Filters)
	}
	if req.StartingCapital != nil {
		st.StartingCapital = *req.StartingCapital
	}
	if req.RiskPerTradePercent != nil {
		st.RiskPerTradePercent = *req.RiskPerTradePercent
	}
	if req.MultiTP != nil {
		st.MultiTP = *req.MultiTP
	}
	if req.NewsFilter != nil {
		st.NewsFilter = *req.NewsFilter
	}
	if err := st.Validate(); err != nil {
		return st, &RequestError{Status: http.StatusBadRequest, Err: err}
	}
	return st, nil
}

// Backtest loads the asset, runs it, stores the result and, when asked,
// hands the trades to the journal sinks.
func (s *Service) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResponse, error) {
	st, err := s.settingsFor(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	bars, err := s.source.Load(ctx, st.Asset)
	if err != nil {
		s.metrics.ObserveRun(st.Asset, nil, time.Since(start))
		return nil, classify(fmt.Errorf("failed to load %s: %w", st.Asset, err))
	}
	res, err := s.engine.Run(bars, st.RunConfig())
	s.metrics.ObserveRun(st.Asset, res, time.Since(start))
	if err != nil {
		return nil, classify(err)
	}

	run := &Run{
		ID:        uuid.New().String(),
		Asset:     st.Asset,
		CreatedAt: time.Now().UTC(),
		Result:    res,
	}
	s.store.Put(run)
	s.logger.Info("Backtest stored",
		zap.String("run_id", run.ID),
		zap.String("asset", run.Asset),
		zap.Int("trades", res.Summary.TotalTrades),
	)

	if req.Journal {
		notices := journal.Publish(ctx, s.logger, journal.Record{
			RunID:     run.ID,
			Asset:     run.Asset,
			Trades:    res.Trades,
			Summary:   res.Summary,
			CreatedAt: run.CreatedAt,
		}, s.exporters...)
		for _, n := range notices {
			s.metrics.ObserveJournalFailure(n.Sink)
		}
		journaled := *run
		journaled.Notices = notices
		s.store.Put(&journaled)
		run = &journaled
	}
	return newResponse(run), nil
}

// classify maps load and run errors onto HTTP statuses
func classify(err error) error {
	var pe *marketdata.ParseError
	var ve *engine.ValidationError
	switch {
	case errors.Is(err, marketdata.ErrUnknownAsset):
		return &RequestError{Status: http.StatusNotFound, Err: err}
	case errors.As(err, &pe), errors.As(err, &ve):
		return &RequestError{Status: http.StatusUnprocessableEntity, Err: err}
	case errors.Is(err, engine.ErrInvalidCapital), errors.Is(err, engine.ErrUnknownSignal):
		return &RequestError{Status: http.StatusBadRequest, Err: err}
	default:
		return err
	}
}

func newResponse(run *Run) *BacktestResponse {
	res := run.Result
	equity := make([]EquityPoint, len(res.Series))
	for i, b := range res.Series {
		equity[i] = EquityPoint{Date: b.Date, Equity: b.Equity}
	}
	notices := run.Notices
	if notices == nil {
		notices = []journal.Notice{}
	}
	return &BacktestResponse{
		RunID:          run.ID,
		Asset:          run.Asset,
		Rule:           res.Rule,
		Config:         res.Config,
		Summary:        res.Summary,
		Trades:         res.Trades,
		Equity:         equity,
		JournalNotices: notices,
	}
}
