package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/runctx"
	"mapsharvest-engine/internal/scrape/util"
)

const sheetName = "Results"

// File writes records in the job's output format under Dir.
type File struct {
	Dir string
	now func() time.Time
}

func NewFile(dir string) *File { return &File{Dir: dir, now: time.Now} }

// FileName is <query-slug>_<jobid>_<YYYYMMDD_HHMMSS>.<ext>.
func FileName(query, jobID string, at time.Time, format domain.OutputFormat) string {
	return fmt.Sprintf("%s_%s_%s.%s", util.Slug(query, 40), jobID, at.Format("20060102_150405"), format.Ext())
}

// Deliver writes nothing when there are no records.
func (f *File) Deliver(ctx context.Context, rc *runctx.RunContext, res Result) error {
	if len(res.Records) == 0 {
		return nil
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	path := filepath.Join(f.Dir, FileName(rc.Job.Query, rc.JobID, now(), rc.Job.OutputFormat))

	var err error
	switch rc.Job.OutputFormat {
	case domain.FormatCSV:
		err = writeCSV(path, res.Records)
	case domain.FormatJSON:
		err = writeJSON(path, res.Records)
	default:
		err = writeXLSX(path, res.Records)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	rc.AddArtifact(path)
	rc.Progress("Saved %d records to %s", len(res.Records), filepath.Base(path))
	return nil
}

func writeXLSX(path string, recs []domain.BusinessRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	w := &sheetWriter{f: f, sheet: sheetName}
	for i, h := range domain.Columns {
		w.set(i+1, 1, h)
	}
	for r, rec := range recs {
		for c, v := range rec.Row() {
			w.set(c+1, r+2, v)
		}
	}

	w.width("A", "C", 22)
	w.width("D", "E", 40)
	w.width("F", "G", 28)
	w.width("H", "H", 40)
	w.width("I", "K", 14)
	w.width("L", "L", 48)
	if w.err != nil {
		return w.err
	}

	return f.SaveAs(path)
}

// sheetWriter keeps the first error and skips every write after it.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) set(col, row int, v any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetCellValue(w.sheet, cell, v); err != nil {
		w.err = fmt.Errorf("cell %s: %w", cell, err)
	}
}

func (w *sheetWriter) width(from, to string, chars float64) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetColWidth(w.sheet, from, to, chars)
}

func writeCSV(path string, recs []domain.BusinessRecord) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(fh)
	if err := w.Write(domain.Columns); err != nil {
		_ = fh.Close()
		return err
	}
	for _, r := range recs {
		if err := w.Write(r.Row()); err != nil {
			_ = fh.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}

func writeJSON(path string, recs []domain.BusinessRecord) error {
	rows := make([]map[string]string, 0, len(recs))
	for _, r := range recs {
		row := make(map[string]string, len(domain.Columns))
		for i, v := range r.Row() {
			row[domain.Columns[i]] = v
		}
		rows = append(rows, row)
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
