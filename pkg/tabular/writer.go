package tabular

import (
	"strings"

	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
)

// RecordSeparator terminates every record written by Encode.
const RecordSeparator = "\r\n"

// EscapeCell quotes a cell when it contains the delimiter, a quote or a line break,
// doubling any quotes inside.
func EscapeCell(cell string) string {
	if strings.ContainsAny(cell, ",\"\n\r") {
		return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
	}
	return cell
}

// EncodeRecord escapes and joins one record.
func EncodeRecord(cells []string) string {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = EscapeCell(c)
	}
	return strings.Join(escaped, string(Delimiter))
}

// Encode writes a header and rows as delimited text.
func Encode(header []string, rows []models.SampleRow) string {
	var sb strings.Builder
	sb.WriteString(EncodeRecord(header))
	for _, row := range rows {
		sb.WriteString(RecordSeparator)
		sb.WriteString(EncodeRecord(row))
	}
	return sb.String()
}

// Encode writes the table back out as delimited text.
func (t *Table) Encode() string {
	return Encode(t.Headers, t.Rows)
}

// EncodeTriplets writes facts as a knowledge-base file.
func EncodeTriplets(facts []models.TripletFact) string {
	rows := make([]models.SampleRow, len(facts))
	for i, f := range facts {
		rows[i] = models.SampleRow{f.Anchor, f.Positive, f.Negative}
	}
	return Encode(KnowledgeBaseColumns, rows)
}
