// Package tabular reads and writes the delimited text files exchanged with users:
// source files to be mapped, knowledge-base triplet files and exported tables.
package tabular

import (
	"strings"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
)

// Role tells the parser which header rules apply.
type Role string

const (
	RoleSource        Role = "source"
	RoleKnowledgeBase Role = "knowledge-base"
)

// Delimiter separates cells in every file this package reads or writes.
const Delimiter = ','

// KnowledgeBaseColumns are the required knowledge-base headers, in canonical order.
var KnowledgeBaseColumns = []string{"anchor", "positive", "negative"}

// Table is a parsed file: its header row and the retained data rows.
// Every row has exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    []models.SampleRow
}

// Columns returns the headers as positioned source columns.
func (t *Table) Columns() []models.SourceColumn {
	cols := make([]models.SourceColumn, len(t.Headers))
	for i, h := range t.Headers {
		cols[i] = models.SourceColumn{Header: h, Position: i}
	}
	return cols
}

// ColumnIndex returns the position of header, or -1.
func (t *Table) ColumnIndex(header string) int {
	for i, h := range t.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

// Options tune how many data lines are read.
type Options struct {
	// MaxRows bounds the data lines considered after the header (0 = unbounded).
	// Dropped lines still count against the bound.
	MaxRows int
}

// DefaultOptions returns the options a role is parsed with by Parse.
func DefaultOptions(role Role) Options {
	if role == RoleSource {
		return Options{MaxRows: models.MaxSampleRows}
	}
	return Options{}
}

// Parse parses raw delimited text for the given role with the role's default options.
func Parse(text string, role Role) (*Table, error) {
	return ParseWithOptions(text, role, DefaultOptions(role))
}

// ParseWithOptions parses raw delimited text.
//
// Blank lines are discarded. Cells are trimmed and unquoted; quoted cells may contain
// the delimiter, doubled quotes and line breaks. A data row whose cell count differs
// from the header row, or whose cells are all empty, is dropped.
func ParseWithOptions(text string, role Role, opts Options) (*Table, error) {
	records := readRecords(text)
	if len(records) == 0 {
		return nil, &apperrors.EmptyInputError{Role: string(role)}
	}

	rawHeaders := cleanCells(records[0])
	data := records[1:]
	if opts.MaxRows > 0 && len(data) > opts.MaxRows {
		data = data[:opts.MaxRows]
	}

	switch role {
	case RoleKnowledgeBase:
		return parseKnowledgeBase(rawHeaders, data)
	default:
		return parseSource(rawHeaders, data)
	}
}

func parseSource(rawHeaders []string, data [][]string) (*Table, error) {
	// Empty header cells are discarded; keep the raw positions of the rest so data
	// rows can be projected onto them.
	keep := make([]int, 0, len(rawHeaders))
	headers := make([]string, 0, len(rawHeaders))
	seen := make(map[string]bool, len(rawHeaders))
	var dupes []string
	for i, h := range rawHeaders {
		if h == "" {
			continue
		}
		if seen[h] {
			dupes = append(dupes, h)
			continue
		}
		seen[h] = true
		keep = append(keep, i)
		headers = append(headers, h)
	}
	if len(headers) == 0 {
		return nil, &apperrors.NoHeadersError{}
	}
	if len(dupes) > 0 {
		return nil, &apperrors.DuplicateHeadersError{Headers: dupes}
	}

	return &Table{
		Headers: headers,
		Rows:    projectRows(data, len(rawHeaders), keep),
	}, nil
}

func parseKnowledgeBase(rawHeaders []string, data [][]string) (*Table, error) {
	keep := make([]int, 0, len(KnowledgeBaseColumns))
	var missing []string
	for _, required := range KnowledgeBaseColumns {
		idx := -1
		for i, h := range rawHeaders {
			if strings.EqualFold(h, required) {
				idx = i
				break
			}
		}
		if idx < 0 {
			missing = append(missing, required)
			continue
		}
		keep = append(keep, idx)
	}
	if len(missing) > 0 {
		return nil, &apperrors.MissingColumnsError{Missing: missing}
	}

	headers := make([]string, len(KnowledgeBaseColumns))
	copy(headers, KnowledgeBaseColumns)
	return &Table{
		Headers: headers,
		Rows:    projectRows(data, len(rawHeaders), keep),
	}, nil
}

// ParseTriplets parses a knowledge-base file into triplet facts.
// Facts without an anchor are dropped.
func ParseTriplets(text string) ([]models.TripletFact, error) {
	table, err := Parse(text, RoleKnowledgeBase)
	if err != nil {
		return nil, err
	}

	facts := make([]models.TripletFact, 0, len(table.Rows))
	for _, row := range table.Rows {
		fact := models.TripletFact{Anchor: row[0], Positive: row[1], Negative: row[2]}
		if fact.Anchor == "" {
			continue
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

func projectRows(data [][]string, width int, keep []int) []models.SampleRow {
	rows := make([]models.SampleRow, 0, len(data))
	for _, record := range data {
		if len(record) != width {
			continue
		}
		cells := cleanCells(record)
		row := make(models.SampleRow, len(keep))
		empty := true
		for j, idx := range keep {
			row[j] = cells[idx]
			if row[j] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func readRecords(text string) [][]string {
	var records [][]string
	for _, record := range scanRecords(text) {
		if isBlankRecord(record) {
			continue
		}
		records = append(records, record)
	}
	return records
}

// isBlankRecord matches whitespace-only lines. A line of bare delimiters is not blank.
func isBlankRecord(record []string) bool {
	return len(record) == 1 && strings.TrimSpace(record[0]) == ""
}

func cleanCells(record []string) []string {
	cells := make([]string, len(record))
	for i, c := range record {
		cells[i] = cleanCell(c)
	}
	return cells
}

// cleanCell trims a cell. Quotes were already resolved by the scanner.
func cleanCell(c string) string {
	return strings.TrimSpace(c)
}
