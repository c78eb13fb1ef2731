package tabular

import "strings"

// scanRecords splits text into records of raw (untrimmed) cells.
//
// A cell that starts with a quote, after optional leading whitespace, is quoted: it
// runs to the matching closing quote, may span line breaks, and "" inside it is a
// literal quote. Text between the closing quote and the next delimiter is kept
// as-is. Quotes elsewhere are literal. An unterminated quoted cell runs to the end
// of the input. Records end at \n, \r\n or a lone \r.
func scanRecords(text string) [][]string {
	var (
		records [][]string
		record  []string
		cell    strings.Builder
		// quoted is set once the current cell has opened a quoted section.
		quoted   bool
		inQuotes bool
	)

	endCell := func() {
		record = append(record, cell.String())
		cell.Reset()
		quoted = false
	}
	endRecord := func() {
		endCell()
		records = append(records, record)
		record = nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inQuotes {
			if c != '"' {
				cell.WriteByte(c)
				continue
			}
			if i+1 < len(text) && text[i+1] == '"' {
				cell.WriteByte('"')
				i++
				continue
			}
			inQuotes = false
			continue
		}

		switch {
		case c == Delimiter:
			endCell()
		case c == '\n':
			endRecord()
		case c == '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			endRecord()
		case c == '"' && !quoted && strings.TrimSpace(cell.String()) == "":
			// Opening quote; leading whitespace before it is not part of the cell.
			cell.Reset()
			quoted = true
			inQuotes = true
		default:
			cell.WriteByte(c)
		}
	}

	if cell.Len() > 0 || len(record) > 0 || quoted {
		endRecord()
	}
	return records
}
