package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/japanese"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
	"github.com/ginjaninja78/billing-status-reconciler/internal/export"
	"github.com/ginjaninja78/billing-status-reconciler/internal/ingest"
	"github.com/ginjaninja78/billing-status-reconciler/internal/logger"
	"github.com/ginjaninja78/billing-status-reconciler/internal/selection"
	"github.com/ginjaninja78/billing-status-reconciler/pkg/utils"
)

const deferredCSV = `請求書発行日,支払期限日,請求金額,入金ステータス,企業名,請求番号
2024/06/01,2024/06/30,10000,入金済み,A社,NP-1
2024/06/05,2024/07/05,"3,000",未入金,A社,NP-2
`

const directCSV = `日付,支払期日,書類番号,送付先名,金額
2024/06/02,2024/06/30,INV-1,B社,25500
2024/06/03,2024/06/30,INV-2,B社,8000
`

func testContext() (context.Context, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return logger.WithContext(context.Background(), logger.NewWithWriter(buf)), buf
}

type fakePusher struct{ rows int }

func (f *fakePusher) Push(_ context.Context, values [][]interface{}) error {
	f.rows = len(values)
	return nil
}

type fakeUploader struct{ name string }

func (f *fakeUploader) Upload(_ context.Context, name, _ string, _ []byte) (string, error) {
	f.name = name
	return "gs://bucket/" + name, nil
}

func TestPrepareAndReconcile(t *testing.T) {
	ctx, _ := testContext()
	p := NewRunner(nil).Prepare(ctx, Inputs{
		Deferred: []ingest.Source{{Name: "np.csv", Data: []byte(deferredCSV)}},
		Direct:   []ingest.Source{{Name: "bakuraku.csv", Data: []byte(directCSV)}},
	})

	if len(p.Notices) != 0 {
		t.Fatalf("unexpected notices: %+v", p.Notices)
	}
	if p.Stats.FilesRead != 2 || p.Stats.Identities != 2 {
		t.Fatalf("unexpected stats: %+v", p.Stats)
	}

	ids := p.Identities()
	sel := selection.NewStore()
	sel.SetPaid(ids[0], true)

	table, notices := p.Reconcile(sel)
	if len(notices) != 0 {
		t.Fatalf("unexpected notices: %+v", notices)
	}
	if len(table.Lines()) != 4 {
		t.Fatalf("records = %d, want 4", len(table.Lines()))
	}
	if got := table.Totals().Billed; !got.Equal(decimal.NewFromInt(46500)) {
		t.Errorf("billed total = %s, want 46500", got)
	}
	if got := p.UnpaidTotal(sel); !got.Equal(decimal.NewFromInt(11000)) {
		t.Errorf("unpaid total = %s, want 11000", got)
	}

	sel.SetExcluded(ids[1], true)
	if got := p.UnpaidTotal(sel); !got.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("unpaid total after exclusion = %s, want 3000", got)
	}
}

func TestPrepareShiftJISInput(t *testing.T) {
	ctx, _ := testContext()
	data, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(deferredCSV))
	if err != nil {
		t.Fatal(err)
	}

	p := NewRunner(nil).Prepare(ctx, Inputs{Deferred: []ingest.Source{{Name: "np.csv", Data: data}}})
	if len(p.Deferred) != 2 {
		t.Fatalf("records = %d, want 2; notices %+v", len(p.Deferred), p.Notices)
	}
	if p.Deferred[0].Paid != billing.Paid {
		t.Error("first record should be paid")
	}
}

func TestPrepareIsolatesFailures(t *testing.T) {
	ctx, logs := testContext()
	brokenDeferred := strings.Replace(deferredCSV, "入金ステータス", "ステータス", 1)

	p := NewRunner(nil).Prepare(ctx, Inputs{
		Deferred: []ingest.Source{{Name: "np.csv", Data: []byte(brokenDeferred)}},
		Direct: []ingest.Source{
			{Name: "broken.csv", Data: []byte{0xff, 0xfe, 0x00, 0x81}},
			{Name: "bakuraku.csv", Data: []byte(directCSV)},
		},
	})

	kinds := map[NoticeKind]int{}
	for _, n := range p.Notices {
		kinds[n.Kind]++
	}
	if kinds[KindMissingColumn] != 1 || kinds[KindDecodeError] != 1 {
		t.Fatalf("unexpected notices: %+v", p.Notices)
	}
	if p.Deferred != nil {
		t.Error("deferred feed should be skipped")
	}
	if len(p.Direct) != 2 {
		t.Errorf("direct feed should proceed, got %d lines", len(p.Direct))
	}
	if !strings.Contains(logs.String(), "file skipped") {
		t.Errorf("expected a log line for the skipped file, got %s", logs.String())
	}
}

func TestPrepareCoercionNotice(t *testing.T) {
	ctx, logs := testContext()
	csv := "日付,支払期日,書類番号,送付先名,金額\nsoon,2024/06/30,INV-1,B社,abc\n"

	p := NewRunner(nil).Prepare(ctx, Inputs{Direct: []ingest.Source{{Name: "b.csv", Data: []byte(csv)}}})
	if len(p.Notices) != 1 || p.Notices[0].Kind != KindCoercion {
		t.Fatalf("expected one coercion notice, got %+v", p.Notices)
	}

	out := logs.String()
	if !strings.Contains(out, "values coerced") || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected a warn log line for the coerced values, got %s", out)
	}
	if !strings.Contains(out, `"invalid_amounts":1`) {
		t.Errorf("expected the invalid amount count in the log, got %s", out)
	}
}

func TestExportEmptyResult(t *testing.T) {
	ctx, _ := testContext()
	r := NewRunner(nil)
	p := r.Prepare(ctx, Inputs{})

	res, err := r.Export(ctx, p, nil, export.Options{}, Destinations{})
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if res.Artifact != nil {
		t.Error("no artifact expected for an empty result")
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != KindEmptyResult {
		t.Fatalf("expected empty result notice, got %+v", res.Notices)
	}
	if res.Notices[0].Skipped() {
		t.Error("empty result is informational")
	}
}

func TestExportDelivers(t *testing.T) {
	ctx, _ := testContext()
	r := NewRunner(nil)
	p := r.Prepare(ctx, Inputs{Direct: []ingest.Source{{Name: "b.csv", Data: []byte(directCSV)}}})

	pusher := &fakePusher{}
	uploader := &fakeUploader{}
	files := utils.NewFileManager("", t.TempDir())
	opts := export.Options{Format: "csv", Now: time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)}

	res, err := r.Export(ctx, p, selection.NewStore(), opts, Destinations{Files: files, Sheets: pusher, Uploader: uploader})
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if !utils.FileExists(res.OutputFile) {
		t.Errorf("expected output file %q", res.OutputFile)
	}
	if pusher.rows != 4 || !res.PushedToSheets {
		t.Errorf("pushed rows = %d, want header + 2 records + totals", pusher.rows)
	}
	if uploader.name != res.Artifact.Filename || !strings.HasPrefix(res.UploadedTo, "gs://bucket/") {
		t.Errorf("unexpected upload: %q -> %q", uploader.name, res.UploadedTo)
	}
	if res.Stats.Records != 2 {
		t.Errorf("records = %d, want 2", res.Stats.Records)
	}
}

func TestNoticeMessage(t *testing.T) {
	n := Notice{Kind: KindDecodeError, Err: errors.New("bad bytes")}
	if n.Message() != "bad bytes" || !n.Skipped() {
		t.Errorf("unexpected notice behaviour: %q %v", n.Message(), n.Skipped())
	}
}
