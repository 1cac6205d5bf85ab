// Package source loads the ordered list of raw phone records from a
// spreadsheet, CSV or plain-text file, local or remote.
package source

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	logx "tgadder/pkg/logx"
)

// Record is one raw input row. Line is 1-based in the source file.
type Record struct {
	Line      int
	Phone     string
	FirstName string
}

// Format of the input file.
type Format string

const (
	FormatAuto Format = ""
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

type Options struct {
	Path string
	URL  string

	Format Format
	Sheet  string // xlsx only; default first sheet

	// PhoneColumn is matched case-insensitively against the header row.
	// Ignored for FormatText.
	PhoneColumn string
	// NameColumn is optional; a missing column is logged and ignored.
	NameColumn string

	HTTPTimeout time.Duration
	MaxRetries  int
}

var (
	ErrNoSource      = eris.New("source: set a path or a url")
	ErrColumnMissing = eris.New("source: phone column not found")
)

// Load reads all records in file order. Rows with an empty phone cell are
// dropped; everything else is returned verbatim for the normalizer to judge.
func Load(ctx context.Context, opts Options, log logx.Logger) ([]Record, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	var (
		data []byte
		name string
		err  error
	)
	switch {
	case strings.TrimSpace(opts.URL) != "":
		name = urlPath(opts.URL)
		data, err = download(ctx, opts.URL, opts.HTTPTimeout, opts.MaxRetries, log)
	case strings.TrimSpace(opts.Path) != "":
		name = opts.Path
		data, err = readFile(opts.Path)
	default:
		return nil, ErrNoSource
	}
	if err != nil {
		return nil, err
	}

	format := opts.Format
	if format == FormatAuto {
		format = detect(name)
	}

	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(data, opts.Sheet)
	case FormatCSV:
		rows, err = readCSV(data)
	case FormatText:
		return textRecords(data), nil
	default:
		return nil, eris.Errorf("source: unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return tableRecords(rows, opts.PhoneColumn, opts.NameColumn, log)
}

func detect(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".txt", ".lst":
		return FormatText
	default:
		// Spreadsheet links often have no extension at all.
		return FormatXLSX
	}
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

// tableRecords maps a header + data rows to records.
func tableRecords(rows [][]string, phoneCol, nameCol string, log logx.Logger) ([]Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	pi := columnIndex(header, phoneCol)
	if pi < 0 {
		return nil, eris.Wrapf(ErrColumnMissing, "%q (available: %s)", phoneCol, strings.Join(header, ", "))
	}
	ni := -1
	if strings.TrimSpace(nameCol) != "" {
		if ni = columnIndex(header, nameCol); ni < 0 {
			log.Warn("name column not found; first names come from the platform only", logx.String("column", nameCol))
		}
	}

	// A row with data but no phone is kept with an empty phone so the run
	// logs it as invalid; fully blank rows are padding and dropped.
	out := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		p := cell(row, pi)
		if blank(p) {
			p = ""
		}
		name := cell(row, ni)
		if blank(name) {
			name = ""
		}
		out = append(out, Record{Line: i + 2, Phone: p, FirstName: name})
	}
	return out, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if !blank(c) {
			return false
		}
	}
	return true
}

func columnIndex(header []string, name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "nan")
}

func textRecords(data []byte) []Record {
	var out []Record
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if blank(line) || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, Record{Line: i + 1, Phone: line})
	}
	return out
}
