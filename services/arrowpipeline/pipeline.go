// Package arrowpipeline implements an Apache Arrow IPC pipeline for annotated
// backtest series
package arrowpipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sp500-backtest/services/engine"
)

var ErrSchemaMismatch = errors.New("arrow schema mismatch")

// Config holds Arrow pipeline configuration
type Config struct {
	BatchSize int `json:"batch_size" mapstructure:"batch_size"`
}

// DefaultBatchSize caps the rows per record batch
const DefaultBatchSize = 4096

// SeriesSchema is the layout of one annotated bar per row
var SeriesSchema = arrow.NewSchema([]arrow.Field{
	{Name: "date", Type: arrow.FixedWidthTypes.Timestamp_ms},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
	{Name: "liquidity_sweep", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "bos_up", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "bos_down", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "order_block", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "fvg", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "equity", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Pipeline handles Arrow IPC streaming
type Pipeline struct {
	config     Config
	memoryPool memory.Allocator
	logger     *zap.Logger
}

// NewPipeline creates a new Arrow pipeline
func NewPipeline(config Config, logger *zap.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		config:     config,
		memoryPool: memory.NewGoAllocator(),
		logger:     logger,
	}
}

// ConvertToArrow serializes the result series as an IPC stream
func (p *Pipeline) ConvertToArrow(res *engine.Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.WriteStream(context.Background(), &buf, res.Series); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteStream writes the series to w as one IPC stream of BatchSize-row records
func (p *Pipeline) WriteStream(ctx context.Context, w io.Writer, series []engine.AnnotatedBar) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(SeriesSchema), ipc.WithAllocator(p.memoryPool))
	for start := 0; start < len(series); start += p.config.BatchSize {
		if err := ctx.Err(); err != nil {
			writer.Close()
			return err
		}
		end := min(start+p.config.BatchSize, len(series))
		if err := p.writeBatch(writer, series[start:end]); err != nil {
			writer.Close()
			return err
		}
		p.logger.Debug("Wrote Arrow batch", zap.Int("offset", start), zap.Int("size", end-start))
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow writer: %w", err)
	}
	return nil
}

func (p *Pipeline) writeBatch(writer *ipc.Writer, batch []engine.AnnotatedBar) error {
	b := array.NewRecordBuilder(p.memoryPool, SeriesSchema)
	defer b.Release()

	dates := b.Field(0).(*array.TimestampBuilder)
	floats := func(i int) *array.Float64Builder { return b.Field(i).(*array.Float64Builder) }
	flags := func(i int) *array.BooleanBuilder { return b.Field(i).(*array.BooleanBuilder) }

	for _, bar := range batch {
		dates.Append(arrow.Timestamp(bar.Date.UnixMilli()))
		floats(1).Append(bar.Open.InexactFloat64())
		floats(2).Append(bar.High.InexactFloat64())
		floats(3).Append(bar.Low.InexactFloat64())
		floats(4).Append(bar.Close.InexactFloat64())
		floats(5).Append(bar.Volume.InexactFloat64())
		flags(6).Append(bar.LiquiditySweep)
		flags(7).Append(bar.BOSUp)
		flags(8).Append(bar.BOSDown)
		flags(9).Append(bar.OrderBlock)
		flags(10).Append(bar.FVG)
		floats(11).Append(bar.Equity.InexactFloat64())
	}

	record := b.NewRecord()
	defer record.Release()

	if err := writer.Write(record); err != nil {
		return fmt.Errorf("failed to write Arrow record: %w", err)
	}
	return nil
}

// ConvertFromArrow decodes an IPC stream written by ConvertToArrow
func (p *Pipeline) ConvertFromArrow(data []byte) ([]engine.AnnotatedBar, error) {
	return p.ReadStream(bytes.NewReader(data))
}

// ReadStream decodes every record of an IPC stream
func (p *Pipeline) ReadStream(r io.Reader) ([]engine.AnnotatedBar, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(p.memoryPool))
	if err != nil {
		return nil, fmt.Errorf("failed to open Arrow stream: %w", err)
	}
	defer reader.Release()

	if err := checkSchema(reader.Schema()); err != nil {
		return nil, err
	}

	series := []engine.AnnotatedBar{}
	for reader.Next() {
		rec := reader.Record()
		dates := rec.Column(0).(*array.Timestamp)
		col := func(i int) *array.Float64 { return rec.Column(i).(*array.Float64) }
		flag := func(i int) *array.Boolean { return rec.Column(i).(*array.Boolean) }
		for row := 0; row < int(rec.NumRows()); row++ {
			series = append(series, engine.AnnotatedBar{
				Bar: engine.Bar{
					Date:   time.UnixMilli(int64(dates.Value(row))).UTC(),
					Open:   decimal.NewFromFloat(col(1).Value(row)),
					High:   decimal.NewFromFloat(col(2).Value(row)),
					Low:    decimal.NewFromFloat(col(3).Value(row)),
					Close:  decimal.NewFromFloat(col(4).Value(row)),
					Volume: decimal.NewFromFloat(col(5).Value(row)),
				},
				LiquiditySweep: flag(6).Value(row),
				BOSUp:          flag(7).Value(row),
				BOSDown:        flag(8).Value(row),
				OrderBlock:     flag(9).Value(row),
				FVG:            flag(10).Value(row),
				Equity:         decimal.NewFromFloat(col(11).Value(row)),
			})
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read Arrow record: %w", err)
	}
	return series, nil
}

func checkSchema(got *arrow.Schema) error {
	want := SeriesSchema.Fields()
	fields := got.Fields()
	if len(fields) != len(want) {
		return fmt.Errorf("%w: %d fields, want %d", ErrSchemaMismatch, len(fields), len(want))
	}
	for i, f := range fields {
		if f.Name != want[i].Name || !arrow.TypeEqual(f.Type, want[i].Type) {
			return fmt.Errorf("%w: field %d is %s %s, want %s %s", ErrSchemaMismatch, i, f.Name, f.Type, want[i].Name, want[i].Type)
		}
	}
	return nil
}
