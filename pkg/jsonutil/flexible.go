package jsonutil

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexibleString converts a JSON value to a string. Models asked for string values
// sometimes answer with null, a number or a boolean; null and empty values yield
// ok=false. Arrays and objects are not strings and also yield ok=false.
func FlexibleString(raw json.RawMessage) (value string, ok bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		str = strings.TrimSpace(str)
		return str, str != ""
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return strconv.FormatFloat(num, 'f', -1, 64), true
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), true
	}

	return "", false
}

// FlexibleStringMap flattens an object of loosely typed values into strings,
// dropping the entries FlexibleString rejects.
func FlexibleStringMap(raw map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		if s, ok := FlexibleString(value); ok {
			out[key] = s
		}
	}
	return out
}
