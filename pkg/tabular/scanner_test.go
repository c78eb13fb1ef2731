package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanRecords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want [][]string
	}{
		{"empty", "", nil},
		{"single line", "a,b", [][]string{{"a", "b"}}},
		{"trailing delimiter", "a,b,", [][]string{{"a", "b", ""}}},
		{"line endings", "a\r\nb\rc\n", [][]string{{"a"}, {"b"}, {"c"}}},
		{"quoted delimiter", `"a,b",c`, [][]string{{"a,b", "c"}}},
		{"doubled quote", `"say ""x"""`, [][]string{{`say "x"`}}},
		{"space after closing quote", `"Desc" ,Qty`, [][]string{{"Desc ", "Qty"}}},
		{"space before opening quote", ` "Desc",Qty`, [][]string{{"Desc", "Qty"}}},
		{"literal quote mid cell", `5" pipe,x`, [][]string{{`5" pipe`, "x"}}},
		{"quoted line break", "\"a\nb\",c\nd,e", [][]string{{"a\nb", "c"}, {"d", "e"}}},
		{"unterminated quote", `"abc,def`, [][]string{{"abc,def"}}},
		{"quoted empty", `""`, [][]string{{""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scanRecords(tt.text))
		})
	}
}
