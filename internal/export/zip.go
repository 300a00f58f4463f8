package export

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/reconcile"
	"github.com/ginjaninja78/billing-status-reconciler/pkg/utils"
)

// WriteZip packages the combined CSV and, with opts.Split, one CSV per
// billing method.
func WriteZip(table *reconcile.Table, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]bool)

	add := func(name string, t *reconcile.Table) error {
		name = entryName(name, used)
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: opts.Now,
			// Mark names as UTF-8 so Japanese file names survive unzip.
			Flags: 0x800,
		})
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		cw := &CSVWriter{Encoding: opts.Encoding, TotalsLabel: opts.TotalsLabel}
		return cw.Write(w, t)
	}

	if err := add(FileName(opts, config.FormatCSV), table); err != nil {
		return nil, err
	}

	if opts.Split {
		methods, tables := table.ByBillingMethod()
		for _, m := range methods {
			split := opts
			split.Label = opts.Label + "_" + m
			if err := add(FileName(split, config.FormatCSV), tables[m]); err != nil {
				return nil, err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// entryName flattens name into a single archive entry and keeps it distinct
// from the entries already written.
func entryName(name string, used map[string]bool) string {
	name = strings.TrimLeft(utils.SanitizeFileName(name), ".")
	if name == "" {
		name = "export.csv"
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
	used[candidate] = true
	return candidate
}
