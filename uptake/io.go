package uptake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrEmptyTable is returned for input files without a header row.
	ErrEmptyTable = errors.New("empty table")
	// ErrColumnNotFound is returned when a speaker column cannot be resolved.
	ErrColumnNotFound = errors.New("column not found")
)

// ColumnOptions selects the speaker columns of a table. Empty names fall back
// to the candidate lists.
type ColumnOptions struct {
	SpeakerA   string
	SpeakerB   string
	Candidates ColumnCandidates
}

// Table is a delimited file held in memory. Every row is padded to the
// header width; widths keeps the original cell count of each row. Header
// cells are kept as read and only matched against in trimmed form.
type Table struct {
	Header []string
	Rows   [][]string
	Comma  rune
	widths []int
}

// ReadTable reads a CSV or TSV file, picking the delimiter by extension.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	t, err := ReadTableFrom(f, delimiterFor(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// ReadTableFrom parses delimited data whose first record is the header.
func ReadTableFrom(r io.Reader, comma rune) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}
	header := append([]string(nil), rows[0]...)
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	t := &Table{
		Header: header,
		Rows:   make([][]string, 0, len(rows)-1),
		Comma:  comma,
		widths: make([]int, 0, len(rows)-1),
	}
	for _, row := range rows[1:] {
		t.widths = append(t.widths, len(row))
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Pairs resolves the speaker columns and extracts one pair per row. Cells
// missing from ragged rows are logged and read as empty text.
func (t *Table) Pairs(opts ColumnOptions, logger zerolog.Logger) ([]Pair, error) {
	colA, colB, err := t.resolveSpeakers(opts)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("speakerA", headerNameForIndex(t.Header, colA)).
		Str("speakerB", headerNameForIndex(t.Header, colB)).
		Msg("speaker columns resolved")
	pairs := make([]Pair, len(t.Rows))
	for i, row := range t.Rows {
		pairs[i] = Pair{
			Row:      i,
			SpeakerA: t.cell(i, row, colA, logger),
			SpeakerB: t.cell(i, row, colB, logger),
		}
	}
	return pairs, nil
}

func (t *Table) cell(i int, row []string, col int, logger zerolog.Logger) string {
	if col >= len(row) || (i < len(t.widths) && col >= t.widths[i]) {
		logger.Warn().Int("row", i).Str("column", headerNameForIndex(t.Header, col)).
			Msg("utterance cell is missing; treated as empty text")
		return ""
	}
	return row[col]
}

func (t *Table) resolveSpeakers(opts ColumnOptions) (int, int, error) {
	candidates := opts.Candidates.withDefaults()
	keys := t.columnKeys()
	colA, err := pickColumn(keys, opts.SpeakerA, candidates.SpeakerA)
	if err != nil {
		return -1, -1, fmt.Errorf("speakerA: %w", err)
	}
	colB, err := pickColumn(keys, opts.SpeakerB, candidates.SpeakerB)
	if err != nil {
		return -1, -1, fmt.Errorf("speakerB: %w", err)
	}
	if colA == colB {
		return -1, -1, fmt.Errorf("speakerA and speakerB both resolve to column %s", headerNameForIndex(t.Header, colA))
	}
	return colA, colB, nil
}

// SetColumn stores values under name, overwriting an existing column of the
// same name or appending a new one. A new column goes after the widest row so
// cells beyond the header are kept; the header is padded with empty names.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("rows/values length mismatch: %d vs %d", len(t.Rows), len(values))
	}
	col := findColumn(t.columnKeys(), []string{strings.TrimSpace(name)})
	if col < 0 {
		width := len(t.Header)
		for _, row := range t.Rows {
			width = max(width, len(row))
		}
		for len(t.Header) < width {
			t.Header = append(t.Header, "")
		}
		t.Header = append(t.Header, name)
		col = len(t.Header) - 1
	}
	for i, row := range t.Rows {
		for len(row) <= col {
			row = append(row, "")
		}
		row[col] = values[i]
		t.Rows[i] = row
	}
	return nil
}

// SetScores stores scores under name; unscored rows stay empty.
func (t *Table) SetScores(name string, scores []Score) error {
	values := make([]string, len(scores))
	for i, s := range scores {
		values[i] = s.String()
	}
	return t.SetColumn(name, values)
}

// Write encodes the table with its delimiter.
func (t *Table) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if t.Comma != 0 {
		writer.Comma = t.Comma
	}
	if err := writer.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}
	return nil
}

// WriteTable writes t to path, creating parent directories. The delimiter
// follows the extension of path.
func WriteTable(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	out := *t
	out.Comma = delimiterFor(path)
	if err := out.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DefaultOutputPath places the result next to the input file.
func DefaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	stem := strings.TrimSuffix(input, ext)
	if ext == "" {
		ext = ".csv"
	}
	return stem + "_uptake" + ext
}

func delimiterFor(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}

// columnKeys returns the header cells in the form used for matching.
func (t *Table) columnKeys() []string {
	keys := make([]string, len(t.Header))
	for i, cell := range t.Header {
		keys[i] = cleanCell(cell)
	}
	return keys
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}

func findColumn(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, col := range header {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

func pickColumn(header []string, explicit string, candidates []string) (int, error) {
	if strings.TrimSpace(explicit) != "" {
		return matchExplicitColumn(header, explicit)
	}
	if idx := findColumn(header, candidates); idx >= 0 {
		return idx, nil
	}
	return -1, fmt.Errorf("%w: none of %s", ErrColumnNotFound, strings.Join(candidates, ", "))
}

func matchExplicitColumn(header []string, explicit string) (int, error) {
	trimmed := strings.TrimSpace(explicit)
	for i, col := range header {
		if strings.EqualFold(col, trimmed) {
			return i, nil
		}
	}
	if strings.HasPrefix(trimmed, "#") {
		idx, err := parseColumnIndex(trimmed)
		if err != nil {
			return -1, err
		}
		if idx >= len(header) {
			return -1, fmt.Errorf("column index %s is out of range", trimmed)
		}
		return idx, nil
	}
	return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, explicit)
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	if trimmed == "" {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}

func headerNameForIndex(header []string, idx int) string {
	if idx < 0 {
		return ""
	}
	if idx < len(header) && header[idx] != "" {
		return header[idx]
	}
	return fmt.Sprintf("#%d", idx+1)
}
