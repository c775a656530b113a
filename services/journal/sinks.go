package journal

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"sp500-backtest/services/config"
)

// Sinks is the set of exporters built from settings
type Sinks struct {
	Exporters []Exporter
	closers   []io.Closer
}

// Open builds every sink enabled in cfg. ch may be nil when ClickHouse is not
// configured. A sink that cannot be reached is skipped with a warning.
func Open(ctx context.Context, cfg config.JournalConfig, ch Inserter, logger *zap.Logger) (*Sinks, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sinks{}

	if cfg.CSVPath != "" {
		s.Exporters = append(s.Exporters, NewCSVExporter(cfg.CSVPath))
	}
	if cfg.ClickHouseTable != "" {
		if ch == nil {
			logger.Warn("ClickHouse journal table set without a ClickHouse connection")
		} else {
			ex, err := NewClickHouseExporter(ch, cfg.ClickHouseTable)
			if err != nil {
				return nil, err
			}
			s.Exporters = append(s.Exporters, ex)
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		ex, err := NewKafkaExporter(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		s.Exporters = append(s.Exporters, ex)
		s.closers = append(s.closers, ex)
	}
	if cfg.MySQL.DSN != "" {
		db, err := OpenMySQL(cfg.MySQL.DSN)
		if err != nil {
			logger.Warn("MySQL journal unavailable", zap.Error(err))
		} else {
			ex := NewMySQLExporter(db)
			s.Exporters = append(s.Exporters, ex)
			s.closers = append(s.closers, ex)
		}
	}

	names := make([]string, len(s.Exporters))
	for i, ex := range s.Exporters {
		names[i] = ex.Name()
	}
	logger.Info("Journal sinks ready", zap.Strings("sinks", names))
	return s, ctx.Err()
}

func (s *Sinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
