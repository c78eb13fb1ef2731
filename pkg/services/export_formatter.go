package services

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
	"github.com/ekaya-inc/ekaya-mapper/pkg/tabular"
)

// LongHeaders is the fixed header of the long export table.
var LongHeaders = []string{"LineId", "PropertyName", "PropertyValue", "UoM"}

// ExportOptions configures the two export encodings.
type ExportOptions struct {
	// StandardColumns are the target display names of the narrow table, in order.
	StandardColumns []string
	// IdentifierTarget is the target whose mapped column supplies the long table's LineId.
	IdentifierTarget string
	// FallbackPrefix is prepended to a derived property name when a target has no LocalID.
	FallbackPrefix string
}

// ExportResult holds both encodings of one mapping.
type ExportResult struct {
	Narrow      *tabular.Table
	Long        *tabular.Table
	Diagnostics []string
}

// NarrowCSV returns the narrow table as CSV text.
func (r *ExportResult) NarrowCSV() string { return r.Narrow.Encode() }

// LongCSV returns the long table as CSV text.
func (r *ExportResult) LongCSV() string { return r.Long.Encode() }

// ExportFormatter turns a final mapping into the narrow and long tables.
type ExportFormatter struct {
	opts   ExportOptions
	logger *zap.Logger
}

// NewExportFormatter creates a formatter.
func NewExportFormatter(opts ExportOptions, logger *zap.Logger) *ExportFormatter {
	return &ExportFormatter{
		opts:   opts,
		logger: logger.Named("export-formatter"),
	}
}

type mappedColumn struct {
	target string
	index  int
}

// mappedColumns returns one entry per target with a definite selection, in source
// order. When several columns select the same target the first one wins.
func mappedColumns(headers []string, rows []models.MappingRow) []mappedColumn {
	selected := make(map[string]string, len(rows))
	for _, r := range rows {
		if r.HasDefiniteSelection() {
			selected[r.SourceHeader] = r.SelectedTarget
		}
	}

	seen := make(map[string]bool)
	var out []mappedColumn
	for i, h := range headers {
		target, ok := selected[h]
		if !ok || seen[target] {
			continue
		}
		seen[target] = true
		out = append(out, mappedColumn{target: target, index: i})
	}
	return out
}

func cell(row models.SampleRow, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Format builds both tables over the sample rows.
func (f *ExportFormatter) Format(headers []string, samples []models.SampleRow, rows []models.MappingRow, lookup PropertyLookup) *ExportResult {
	columns := mappedColumns(headers, rows)
	byTarget := make(map[string]int, len(columns))
	for _, c := range columns {
		byTarget[c.target] = c.index
	}

	standard := make(map[string]bool, len(f.opts.StandardColumns))
	for _, s := range f.opts.StandardColumns {
		standard[s] = true
	}

	result := &ExportResult{
		Narrow: &tabular.Table{Headers: append([]string(nil), f.opts.StandardColumns...)},
		Long:   &tabular.Table{Headers: append([]string(nil), LongHeaders...)},
	}

	// One narrow line per sample, even when every standard cell is empty, so the
	// narrow and long files describe the same set of lines.
	for _, sample := range samples {
		out := make([]string, len(f.opts.StandardColumns))
		for i, s := range f.opts.StandardColumns {
			if idx, ok := byTarget[s]; ok {
				out[i] = cell(sample, idx)
			}
		}
		result.Narrow.Rows = append(result.Narrow.Rows, out)
	}

	// Property names are resolved once per target so each fallback is reported once.
	type longColumn struct {
		index int
		name  string
	}
	var longColumns []longColumn
	for _, c := range columns {
		if standard[c.target] {
			continue
		}
		name, diag := f.propertyName(c.target, lookup)
		if diag != "" {
			result.Diagnostics = append(result.Diagnostics, diag)
		}
		longColumns = append(longColumns, longColumn{index: c.index, name: name})
	}

	idIndex, hasID := byTarget[f.opts.IdentifierTarget]
	for _, sample := range samples {
		lineID := ""
		if hasID {
			lineID = cell(sample, idIndex)
		}
		for _, lc := range longColumns {
			value := cell(sample, lc.index)
			if value == "" {
				continue
			}
			result.Long.Rows = append(result.Long.Rows, []string{lineID, lc.name, value, ""})
		}
	}

	f.logger.Debug("Export formatted",
		zap.Int("narrow_rows", len(result.Narrow.Rows)),
		zap.Int("long_rows", len(result.Long.Rows)),
		zap.Int("fallback_names", len(result.Diagnostics)))
	return result
}

func (f *ExportFormatter) propertyName(target string, lookup PropertyLookup) (string, string) {
	if lookup != nil {
		if p, ok := lookup.Get(target); ok && p.LocalID != "" {
			return p.LocalID, ""
		}
	}
	name := FallbackPropertyName(f.opts.FallbackPrefix, target)
	f.logger.Warn("Target has no property identifier, using fallback name",
		zap.String("target", target),
		zap.String("fallback", name))
	return name, "no property identifier for " + target + ", using " + name
}

// FallbackPropertyName strips every non-alphanumeric character from displayName
// and prepends prefix.
func FallbackPropertyName(prefix, displayName string) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, r := range displayName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// MappedDataTable re-heads the sample rows with their mapped targets, in source
// order, dropping unmapped columns. It returns nil when nothing is mapped.
func MappedDataTable(headers []string, samples []models.SampleRow, rows []models.MappingRow) *tabular.Table {
	columns := mappedColumns(headers, rows)
	if len(columns) == 0 {
		return nil
	}

	t := &tabular.Table{Headers: make([]string, len(columns))}
	for i, c := range columns {
		t.Headers[i] = c.target
	}
	for _, sample := range samples {
		out := make([]string, len(columns))
		for i, c := range columns {
			out[i] = cell(sample, c.index)
		}
		t.Rows = append(t.Rows, out)
	}
	return t
}
