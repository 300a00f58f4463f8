// =============================================================================
// Billing Status Reconciler - Pipeline
// =============================================================================
//
// This module runs the reconciliation pipeline for one session.
//
// PIPELINE:
//   1. Ingest every file of each feed (encoding fallback, concatenation)
//   2. Normalize headers and check each feed's required columns
//   3. Transform the deferred-payment feed into records and the
//      direct-invoice feed into lines awaiting selection
//   4. Apply the selection to the direct lines and reconcile both feeds
//   5. Export the table and hand it to the configured destinations
//
// Steps 1-3 run once in Prepare. Steps 4-5 can be repeated against the same
// Prepared value whenever the selection changes.
//
// FAILURES:
//   Nothing here stops the session. A file that cannot be decoded, a feed
//   missing required columns, coerced values and an empty result are all
//   collected as Notices; the other file or feed carries on.
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/export"
	"github.com/ginjaninja78/billing-status-reconciler/internal/feed"
	"github.com/ginjaninja78/billing-status-reconciler/internal/ingest"
	"github.com/ginjaninja78/billing-status-reconciler/internal/logger"
	"github.com/ginjaninja78/billing-status-reconciler/internal/normalize"
	"github.com/ginjaninja78/billing-status-reconciler/internal/reconcile"
	"github.com/ginjaninja78/billing-status-reconciler/internal/remote"
	"github.com/ginjaninja78/billing-status-reconciler/pkg/utils"
)

// =============================================================================
// NOTICES
// =============================================================================

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	// KindDecodeError: no encoding could parse a file; the file was skipped.
	KindDecodeError NoticeKind = "decode_error"

	// KindMissingColumn: a feed lacks required columns; the feed was skipped.
	KindMissingColumn NoticeKind = "missing_column"

	// KindCoercion: some dates or amounts were coerced to null or zero.
	KindCoercion NoticeKind = "coercion_warning"

	// KindEmptyResult: nothing survived to export.
	KindEmptyResult NoticeKind = "empty_result"
)

// Notice is a non-fatal event reported to the user.
type Notice struct {
	Kind NoticeKind
	Feed string
	Err  error
}

// Message returns the text shown to the user.
func (n Notice) Message() string {
	if n.Err == nil {
		return string(n.Kind)
	}
	return n.Err.Error()
}

// Skipped reports whether the notice means data was left out.
func (n Notice) Skipped() bool {
	return n.Kind == KindDecodeError || n.Kind == KindMissingColumn
}

// =============================================================================
// RESULT STRUCTURES
// =============================================================================

// ProcessingStats contains statistics about one session.
type ProcessingStats struct {
	// FilesRead is the number of input files parsed successfully.
	FilesRead int

	// FilesFailed is the number of input files skipped.
	FilesFailed int

	// DeferredRows and DirectRows count the rows read per feed.
	DeferredRows int
	DirectRows   int

	// Identities is the number of distinct direct-invoice identities.
	Identities int

	// Records is the number of reconciled records, totals excluded.
	Records int

	// ProcessingTime is the time taken by Prepare and Export together.
	ProcessingTime time.Duration
}

// Inputs are the files of both feeds. An empty slice means the feed is
// absent.
type Inputs struct {
	Deferred []ingest.Source
	Direct   []ingest.Source
}

// Prepared holds both feeds after transformation, ready for selection.
type Prepared struct {
	// RunID identifies the session in logs.
	RunID string

	// Deferred holds the deferred-payment records; nil when the feed is
	// absent or was skipped.
	Deferred []billing.CommonRecord

	// Direct holds the direct-invoice lines; nil when the feed is absent or
	// was skipped.
	Direct []feed.DirectLine

	// Notices collected while preparing.
	Notices []Notice

	// Stats collected while preparing.
	Stats ProcessingStats
}

// Result represents the outcome of exporting one session.
type Result struct {
	RunID string

	// Table is the reconciled table.
	Table *reconcile.Table

	// Artifact is nil when there was nothing to export.
	Artifact *export.Artifact

	// OutputFile is the path the artifact was written to, if any.
	OutputFile string

	// UploadedTo is the remote URI of the artifact, if uploaded.
	UploadedTo string

	// PushedToSheets reports whether the table was pushed to Sheets.
	PushedToSheets bool

	Notices []Notice
	Stats   ProcessingStats
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner runs the pipeline with one configuration.
type Runner struct {
	cfg *config.MainConfig
}

// NewRunner creates a Runner. A nil cfg means built-in defaults.
func NewRunner(cfg *config.MainConfig) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Runner{cfg: cfg}
}

// Prepare ingests, normalizes and transforms both feeds.
func (r *Runner) Prepare(ctx context.Context, in Inputs) *Prepared {
	start := time.Now()
	p := &Prepared{RunID: uuid.New().String()}
	log := logger.FromContext(ctx).With().Str("run_id", p.RunID).Logger()

	deferredCfg := r.cfg.Feeds.Deferred
	if res := r.load(ctx, p, deferredCfg, in.Deferred); res != nil {
		records, warn := feed.Deferred(res, deferredCfg)
		p.addCoercion(ctx, warn)
		p.Deferred = records
		p.Stats.DeferredRows = res.Table.Len()
		log.Info().Str("feed", deferredCfg.Label).Int("records", len(records)).Msg("feed transformed")
	}

	directCfg := r.cfg.Feeds.Direct
	if res := r.load(ctx, p, directCfg, in.Direct); res != nil {
		lines, warn := feed.ParseDirect(res, directCfg)
		p.addCoercion(ctx, warn)
		p.Direct = lines
		p.Stats.DirectRows = res.Table.Len()
		p.Stats.Identities = len(feed.Identities(lines))
		log.Info().Str("feed", directCfg.Label).Int("lines", len(lines)).
			Int("identities", p.Stats.Identities).Msg("feed parsed")
	}

	p.Stats.ProcessingTime = time.Since(start)
	return p
}

// load ingests and normalizes one feed. It returns nil when the feed is
// absent or must be skipped.
func (r *Runner) load(ctx context.Context, p *Prepared, fc config.FeedConfig, sources []ingest.Source) *normalize.Result {
	if len(sources) == 0 {
		return nil
	}
	log := logger.FromContext(ctx).With().Str("feed", fc.Label).Logger()

	opts := ingest.Options{Encodings: fc.EffectiveEncodings(r.cfg.Encodings), Delimiter: fc.Delimiter}
	table, failed := ingest.Load(sources, opts)
	for _, f := range failed {
		log.Warn().Err(f).Str("file", f.Source).Msg("file skipped")
		p.Notices = append(p.Notices, Notice{Kind: KindDecodeError, Feed: fc.Label, Err: f})
	}
	p.Stats.FilesFailed += len(failed)
	if table == nil {
		return nil
	}
	p.Stats.FilesRead += len(table.Sources)
	log.Debug().Strs("files", table.Sources).Int("rows", table.Len()).Msg("feed ingested")

	res, err := normalize.Apply(table, fc)
	if err != nil {
		var missing *normalize.MissingColumnError
		if !errors.As(err, &missing) {
			missing = &normalize.MissingColumnError{Feed: fc.Label}
		}
		log.Warn().Strs("columns", missing.Columns).Msg("feed skipped")
		p.Notices = append(p.Notices, Notice{Kind: KindMissingColumn, Feed: fc.Label, Err: err})
		return nil
	}
	if len(res.Injected) > 0 {
		log.Debug().Strs("columns", res.Injected).Msg("optional columns created")
	}
	return res
}

func (p *Prepared) addCoercion(ctx context.Context, warn *feed.CoercionWarning) {
	if warn == nil {
		return
	}
	log := logger.FromContext(ctx)
	log.Warn().Str("feed", warn.Feed).
		Int("invalid_dates", warn.InvalidDates).
		Int("invalid_amounts", warn.InvalidAmounts).
		Int("negative_amounts", warn.NegativeAmounts).
		Msg("values coerced")
	p.Notices = append(p.Notices, Notice{Kind: KindCoercion, Feed: warn.Feed, Err: warn})
}

// Identities returns the distinct direct-invoice identities in
// first-appearance order.
func (p *Prepared) Identities() []billing.InvoiceIdentity {
	return feed.Identities(p.Direct)
}

// Reconcile applies sel to the direct lines and reconciles both feeds. The
// returned notices are the preparation notices plus KindEmptyResult when
// nothing survived.
func (p *Prepared) Reconcile(sel feed.Selection) (*reconcile.Table, []Notice) {
	var direct []billing.CommonRecord
	if p.Direct != nil {
		direct = feed.ApplySelection(p.Direct, sel)
	}
	table := reconcile.Reconcile(p.Deferred, direct)

	notices := append([]Notice(nil), p.Notices...)
	if err := table.Empty(); err != nil {
		notices = append(notices, Notice{Kind: KindEmptyResult, Err: err})
	}
	return table, notices
}

// UnpaidTotal is the outstanding total under sel.
func (p *Prepared) UnpaidTotal(sel feed.Selection) decimal.Decimal {
	table, _ := p.Reconcile(sel)
	return table.Totals().Unpaid
}

// =============================================================================
// EXPORT
// =============================================================================

// Destinations are where an exported table goes. Nil fields are skipped.
type Destinations struct {
	Files    *utils.FileManager
	Sheets   remote.Pusher
	Uploader remote.Uploader
}

// Export reconciles p under sel, renders the artifact and delivers it.
//
// RETURNS:
//   - The result. An empty table is not an error: the result carries a
//     KindEmptyResult notice and no artifact.
//   - An error if rendering or any destination fails.
func (r *Runner) Export(ctx context.Context, p *Prepared, sel feed.Selection, opts export.Options, dest Destinations) (*Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With().Str("run_id", p.RunID).Logger()

	table, notices := p.Reconcile(sel)
	result := &Result{
		RunID:   p.RunID,
		Table:   table,
		Notices: notices,
		Stats:   p.Stats,
	}
	result.Stats.Records = len(table.Lines())
	defer func() { result.Stats.ProcessingTime = p.Stats.ProcessingTime + time.Since(start) }()

	if table.Empty() != nil {
		log.Info().Msg("nothing to export")
		return result, nil
	}

	if opts.TotalsLabel == "" {
		opts.TotalsLabel = r.cfg.Export.TotalsLabel
	}
	art, err := export.Render(table, opts)
	if err != nil {
		return result, fmt.Errorf("export: %w", err)
	}
	result.Artifact = art

	if dest.Files != nil {
		path, err := dest.Files.WriteArtifact(art.Filename, art.Data)
		if err != nil {
			return result, err
		}
		result.OutputFile = path
		log.Info().Str("file", path).Int("bytes", len(art.Data)).Msg("artifact written")
	}

	if dest.Sheets != nil {
		if err := dest.Sheets.Push(ctx, remote.SheetValues(table, opts.TotalsLabel)); err != nil {
			return result, fmt.Errorf("push to sheets: %w", err)
		}
		result.PushedToSheets = true
		log.Info().Msg("table pushed to sheets")
	}

	if dest.Uploader != nil {
		uri, err := dest.Uploader.Upload(ctx, art.Filename, art.ContentType, art.Data)
		if err != nil {
			return result, fmt.Errorf("upload artifact: %w", err)
		}
		result.UploadedTo = uri
		log.Info().Str("uri", uri).Msg("artifact uploaded")
	}

	return result, nil
}
