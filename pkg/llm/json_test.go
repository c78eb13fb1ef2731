package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"name": "test", "value": 123}`, `{"name": "test", "value": 123}`},
		{"plain array", `[{"name": "test"}, {"name": "test2"}]`, `[{"name": "test"}, {"name": "test2"}]`},
		{"nested", `{"items": [{"nested": {"array": [1, 2, 3]}}]}`, `{"items": [{"nested": {"array": [1, 2, 3]}}]}`},
		{"think tags", "<think>\nLet me map these columns.\n</think>\n{\"Qty\": \"Quantity\"}", `{"Qty": "Quantity"}`},
		{"think tags with leading whitespace", "  \n<think>{\"draft\": 1}</think>\n{\"a\": \"b\"}", `{"a": "b"}`},
		{"code fence", "```json\n{\"Tag\": \"Tag Number\", \"Notes\": \"N/A\"}\n```", `{"Tag": "Tag Number", "Notes": "N/A"}`},
		{"text before and after", "Here is the mapping:\n{\"a\": \"b\"}\nLet me know.", `{"a": "b"}`},
		{"brackets in strings", `{"Size [mm]": "Diameter {outer}"}`, `{"Size [mm]": "Diameter {outer}"}`},
		{"escaped quotes", `{"Desc \"short\"": "Description"}`, `{"Desc \"short\"": "Description"}`},
		{"array before object", `[1, 2] then {"a": 1}`, `[1, 2]`},
		{"invalid candidate skipped", `{not json} {"a": "b"}`, `{"a": "b"}`},
		{"mismatched brackets skipped", `[} {"Qty": "Quantity"}`, `{"Qty": "Quantity"}`},
		{"bare scalar", "  null ", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_Errors(t *testing.T) {
	for _, input := range []string{"", "no json here", `{"unterminated": "value"`} {
		_, err := ExtractJSON(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseJSONResponse_Map(t *testing.T) {
	input := "<think>thinking</think>```json\n{\"Qty\": \"Quantity\", \"Remarks\": \"N/A\"}\n```"

	result, err := ParseJSONResponse[map[string]string](input)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Qty": "Quantity", "Remarks": "N/A"}, result)
}

func TestParseJSONResponse_WrongShape(t *testing.T) {
	_, err := ParseJSONResponse[map[string]string](`["Qty", "Quantity"]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal JSON")
}
