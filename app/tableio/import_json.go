// Package tableio moves table data across the application boundary: row
// imports from JSON documents and glob-matched file sets, spreadsheet
// exports, and the crash snapshot of unpersisted writes.
package tableio

import (
	"fmt"
	"os"
	"sort"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// ImportResult is a parsed batch of importable rows. Headers map onto table
// columns by name; a nil value means the source had no value for the cell.
type ImportResult struct {
	Headers []string
	Rows    [][]*string
}

// ImportJSONRows reads a JSON document and extracts rows using a JSONPath
// expression. The expression must select an array of objects; each object's
// keys become headers and objects missing a key yield a nil cell.
func ImportJSONRows(filePath, expression string) (*ImportResult, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path is empty")
	}
	b, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	data, err := oj.ParseString(string(b))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return extractRows(data, expression)
}

// extractRows applies a JSONPath expression and flattens the selected array
// of objects into headers and rows.
func extractRows(data any, expression string) (*ImportResult, error) {
	if expression == "" {
		expression = "$"
	}
	x, err := jp.ParseString(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath expression: %w", err)
	}

	results := x.Get(data)
	if len(results) == 0 {
		return nil, fmt.Errorf("JSONPath expression returned no results")
	}

	arr, ok := results[0].([]any)
	if !ok {
		return nil, fmt.Errorf("JSONPath expression must select an array, got %T", results[0])
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("JSONPath expression selected an empty array")
	}

	// First pass collects the union of keys so rows from heterogeneous
	// objects align into one grid.
	headerSet := make(map[string]bool)
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("selected array must contain objects, got %T", item)
		}
		for key := range obj {
			headerSet[key] = true
		}
	}
	headers := make([]string, 0, len(headerSet))
	for key := range headerSet {
		headers = append(headers, key)
	}
	sort.Strings(headers)

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}

	out := &ImportResult{Headers: headers, Rows: make([][]*string, 0, len(arr))}
	for _, item := range arr {
		obj := item.(map[string]any)
		row := make([]*string, len(headers))
		for key, value := range obj {
			if value == nil {
				continue
			}
			s := valueString(value)
			row[index[key]] = &s
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// valueString renders a JSON value as cell text. Objects and arrays are
// JSON-stringified; scalars use their natural representation.
func valueString(val any) string {
	switch v := val.(type) {
	case map[string]any, []any:
		jsonBytes, err := oj.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(jsonBytes)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", val)
	}
}
