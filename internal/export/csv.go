package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/reconcile"
)

// CSVWriter writes a reconciled table as delimited text.
type CSVWriter struct {
	// Encoding is utf-8, utf-8-bom or cp932.
	Encoding string

	// TotalsLabel is shown in the totals row.
	TotalsLabel string
}

// Write writes the header, the records and the totals row to out.
func (w *CSVWriter) Write(out io.Writer, table *reconcile.Table) error {
	encoded, err := encodingWriter(out, w.Encoding)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(encoded)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range table.Records() {
		if err := writer.Write(Row(r, w.TotalsLabel)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}

	if c, ok := encoded.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to flush %s output: %w", w.Encoding, err)
		}
	}
	return nil
}

// encodingWriter wraps out so UTF-8 text is written in the named encoding.
// Characters cp932 cannot represent are replaced rather than failing the
// whole export.
func encodingWriter(out io.Writer, name string) (io.Writer, error) {
	var enc encoding.Encoding
	switch name {
	case "", config.EncodingUTF8:
		return out, nil
	case config.EncodingUTF8BOM, config.EncodingUTF8Sig:
		enc = unicode.UTF8BOM
	case config.EncodingCP932, config.EncodingShiftJIS:
		enc = japanese.ShiftJIS
	default:
		return nil, fmt.Errorf("unsupported output encoding %q", name)
	}
	return transform.NewWriter(out, encoding.ReplaceUnsupported(enc.NewEncoder())), nil
}

func encodeCSV(table *reconcile.Table, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	w := &CSVWriter{Encoding: opts.Encoding, TotalsLabel: opts.TotalsLabel}
	if err := w.Write(&buf, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
