// Package report reads input datasets and renders annotated reports.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/shaymcgreal/datatransformer/app/models"
)

var (
	ErrUniqueIDMissing = errors.New("unique id column not found")
	ErrNoHeader        = errors.New("input has no header row")
)

// ReadDataset parses UTF-8 CSV with an optional byte order mark. The
// first record is the header and must contain uniqueID exactly. Rows may
// be shorter or longer than the header.
func ReadDataset(r io.Reader, uniqueID string) (*models.Dataset, error) {
	cr := csv.NewReader(unicode.UTF8BOM.NewDecoder().Reader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	found := false
	for _, h := range header {
		if h == uniqueID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q; available headers are %s", ErrUniqueIDMissing, uniqueID, strings.Join(header, ", "))
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rec)
	}
	return models.NewDataset(header, rows), nil
}

// OutputHeader is the input header followed by one score column per
// input column and the annotation columns.
func OutputHeader(header []string) []string {
	out := make([]string, 0, 2*len(header)+len(annotationColumns))
	out = append(out, header...)
	for _, h := range header {
		out = append(out, strings.TrimSpace(h)+"_score")
	}
	return append(out, annotationColumns...)
}

var annotationColumns = []string{
	"total_row_score", "final_status", "duplicate_score", "duplicate_match_details",
	"is_matched_to", "is_duplicate_or_matched", "match_key",
}

// Record renders one output row as CSV fields.
func Record(row models.OutputRow) []string {
	rec := make([]string, 0, len(row.Values)+len(row.FieldScores)+len(annotationColumns))
	rec = append(rec, row.Values...)
	for _, s := range row.FieldScores {
		rec = append(rec, strconv.Itoa(s))
	}
	dupScore := ""
	if row.DuplicateScore != nil {
		dupScore = strconv.Itoa(*row.DuplicateScore)
	}
	matchKey := ""
	if row.MatchKey != 0 {
		matchKey = strconv.Itoa(row.MatchKey)
	}
	return append(rec,
		strconv.Itoa(row.TotalRowScore),
		row.FinalStatus,
		dupScore,
		row.DuplicateDetails,
		row.IsMatchedTo,
		pyBool(row.Involved),
		matchKey,
	)
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// WriteCSV writes the annotated report. Records end in CRLF while line
// breaks inside fields are written as they were read.
func WriteCSV(w io.Writer, rep *models.Report) error {
	rw := &recordWriter{w: w}
	rw.cw = csv.NewWriter(&rw.buf)
	if err := rw.write(OutputHeader(rep.Header)); err != nil {
		return err
	}
	for _, row := range rep.Rows {
		if err := rw.write(Record(row)); err != nil {
			return err
		}
	}
	return nil
}

// recordWriter encodes one record at a time with csv.Writer's LF ending
// and swaps only that final LF for CRLF. csv.Writer.UseCRLF would also
// rewrite LFs inside quoted fields.
type recordWriter struct {
	w   io.Writer
	buf bytes.Buffer
	cw  *csv.Writer
}

func (rw *recordWriter) write(rec []string) error {
	rw.buf.Reset()
	if err := rw.cw.Write(rec); err != nil {
		return err
	}
	rw.cw.Flush()
	if err := rw.cw.Error(); err != nil {
		return err
	}
	b := rw.buf.Bytes()
	if _, err := rw.w.Write(b[:len(b)-1]); err != nil {
		return err
	}
	_, err := io.WriteString(rw.w, "\r\n")
	return err
}

// Document is one output row keyed by output column name.
func Document(header []string, row models.OutputRow) map[string]string {
	cols := OutputHeader(header)
	rec := Record(row)
	doc := make(map[string]string, len(cols))
	for i, c := range cols {
		doc[c] = rec[i]
	}
	return doc
}

// WriteNDJSON writes one JSON document per row.
func WriteNDJSON(w io.Writer, rep *models.Report) error {
	enc := json.NewEncoder(w)
	for _, row := range rep.Rows {
		if err := enc.Encode(Document(rep.Header, row)); err != nil {
			return err
		}
	}
	return nil
}

// ProcessedPath is the default output path for input: the same location
// with "_processed" before the extension.
func ProcessedPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_processed" + ext
}
