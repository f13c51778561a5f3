package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"tradeDesk/internal/domain"
)

var tradeHeader = []string{
	"id", "transaction_id", "account_id", "instrument_key", "direction", "order_kind",
	"status", "quantity", "price", "fee", "total_value", "remark", "created_at", "triggered_at",
}

// WriteTradesToCSV writes the journal rows to filename, replacing it.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteTrades(file, trades); err != nil {
		return err
	}
	return file.Close()
}

// WriteTrades writes a header and one CSV record per trade. Amounts keep
// their exact decimal representation.
func WriteTrades(w io.Writer, trades []*domain.Trade) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			t.TransactionID,
			t.AccountID,
			t.InstrumentKey,
			string(t.Direction),
			string(t.OrderKind),
			string(t.Status),
			strconv.FormatInt(t.Quantity, 10),
			t.Price.String(),
			t.Fee.String(),
			t.TotalValue.String(),
			t.Remark,
			formatTime(t.CreatedAt),
			formatTime(t.TriggeredAt),
		})
	}
	writer.Flush()
	return writer.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
