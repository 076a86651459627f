// Package arrowpipeline serializes annotated bars to Apache Arrow IPC so
// downstream analysis tooling can load runs without reparsing CSV.
package arrowpipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"structure-backtest/services/engine"
)

// Pipeline builds Arrow record batches from bars and their aligned
// structure annotations.
type Pipeline struct {
	alloc  memory.Allocator
	logger *zap.Logger
}

// NewPipeline creates a pipeline with its own allocator.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		alloc:  memory.NewGoAllocator(),
		logger: logger,
	}
}

var barSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
	{Name: "bias", Type: arrow.BinaryTypes.String},
	{Name: "break_flag", Type: arrow.BinaryTypes.String},
	{Name: "protected_swing_high", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "protected_swing_low", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "atr", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

// ConvertToArrow serializes bars and their per-bar aligned states into one
// Arrow IPC stream. states must be the same length as bars; nil entries
// become null annotation columns.
func (p *Pipeline) ConvertToArrow(symbol string, bars []engine.Bar, states []*engine.StructureState) ([]byte, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to convert")
	}
	if len(states) != len(bars) {
		return nil, fmt.Errorf("states length %d does not match bars length %d", len(states), len(bars))
	}

	b := array.NewRecordBuilder(p.alloc, barSchema)
	defer b.Release()

	symbolB := b.Field(0).(*array.StringBuilder)
	tsB := b.Field(1).(*array.Int64Builder)
	openB := b.Field(2).(*array.Float64Builder)
	highB := b.Field(3).(*array.Float64Builder)
	lowB := b.Field(4).(*array.Float64Builder)
	closeB := b.Field(5).(*array.Float64Builder)
	volumeB := b.Field(6).(*array.Float64Builder)
	biasB := b.Field(7).(*array.StringBuilder)
	breakB := b.Field(8).(*array.StringBuilder)
	pshB := b.Field(9).(*array.Float64Builder)
	pslB := b.Field(10).(*array.Float64Builder)
	atrB := b.Field(11).(*array.Float64Builder)

	appendOpt := func(fb *array.Float64Builder, v *float64) {
		if v == nil {
			fb.AppendNull()
			return
		}
		fb.Append(*v)
	}

	for i, bar := range bars {
		symbolB.Append(symbol)
		tsB.Append(bar.Timestamp.UnixMilli())
		openB.Append(bar.Open)
		highB.Append(bar.High)
		lowB.Append(bar.Low)
		closeB.Append(bar.Close)
		volumeB.Append(bar.Volume)

		st := states[i]
		if st == nil {
			biasB.Append(engine.BiasNone.String())
			breakB.Append(engine.BreakNone.String())
			pshB.AppendNull()
			pslB.AppendNull()
			atrB.AppendNull()
			continue
		}
		biasB.Append(st.Bias.String())
		breakB.Append(st.Break.String())
		appendOpt(pshB, st.ProtectedSwingHigh)
		appendOpt(pslB, st.ProtectedSwingLow)
		appendOpt(atrB, st.ATR)
	}

	record := b.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(barSchema))
	if err := writer.Write(record); err != nil {
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}

	p.logger.Debug("arrow batch built",
		zap.String("symbol", symbol),
		zap.Int("rows", len(bars)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// ExportFile writes the IPC stream for one run to disk.
func (p *Pipeline) ExportFile(path, symbol string, bars []engine.Bar, states []*engine.StructureState) error {
	data, err := p.ConvertToArrow(symbol, bars, states)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write arrow file: %w", err)
	}
	p.logger.Info("arrow export written", zap.String("path", path), zap.Int("rows", len(bars)))
	return nil
}
