// Package csvsink appends decoded trades to a headerless CSV file.
package csvsink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/coachpo/ndax-gateway/internal/domain/schema"
)

// Columns lists the row layout: TradeId, ProductPairCode, Quantity, Price, Order1, Order2, TradeTime,
// Side, TakerSide, isBlockTrade, orderClientId. The file itself carries no header row.
var Columns = []string{
	"TradeId", "ProductPairCode", "Quantity", "Price", "Order1", "Order2",
	"TradeTime", "Side", "TakerSide", "isBlockTrade", "orderClientId",
}

// Writer appends one row per trade. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	csv  *csv.Writer
}

// Open creates path if needed and positions writes at its end.
func Open(path string) (*Writer, error) {
	clean := filepath.Clean(path)
	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create trades directory: %w", err)
		}
	}
	// #nosec G304 -- path is operator provided via config.
	file, err := os.OpenFile(clean, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open trades file: %w", err)
	}
	return &Writer{file: file, csv: csv.NewWriter(file)}, nil
}

// Record appends trades in order and flushes the batch.
func (w *Writer) Record(ctx context.Context, trades []schema.TradeEvent) error {
	if len(trades) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("trades file closed")
	}
	for _, trade := range trades {
		if err := w.csv.Write(Row(trade)); err != nil {
			return fmt.Errorf("write trade %d: %w", trade.TradeID, err)
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush trades: %w", err)
	}
	return nil
}

// Close flushes pending rows and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return fmt.Errorf("flush trades: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close trades file: %w", closeErr)
	}
	return nil
}

// Row renders a trade in Columns order.
func Row(trade schema.TradeEvent) []string {
	return []string{
		strconv.FormatUint(trade.TradeID, 10),
		strconv.FormatUint(trade.InstrumentID, 10),
		trade.Quantity.String(),
		trade.Price.String(),
		strconv.FormatUint(trade.OrderID1, 10),
		strconv.FormatUint(trade.OrderID2, 10),
		strconv.FormatInt(trade.Timestamp, 10),
		strconv.FormatUint(uint64(trade.Side), 10),
		strconv.FormatUint(uint64(trade.TakerSide), 10),
		strconv.FormatUint(uint64(trade.IsBlockTrade), 10),
		strconv.FormatUint(trade.ClientID, 10),
	}
}
