package tableio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// ImportGlobRows imports rows from every JSON file under root matching a
// doublestar pattern (e.g. "exports/**/*.json"), merging them into one
// batch. Headers are the union of the per-file headers; files contribute
// nil cells for headers they lack.
func ImportGlobRows(root, pattern, expression string) (*ImportResult, error) {
	if root == "" {
		return nil, fmt.Errorf("root directory is empty")
	}
	if pattern == "" {
		return nil, fmt.Errorf("glob pattern is empty")
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pattern %q matched no files under %s", pattern, root)
	}

	merged := &ImportResult{}
	index := make(map[string]int)
	for _, match := range matches {
		res, err := ImportJSONRows(filepath.Join(root, match), expression)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", match, err)
		}

		// Extend the merged header set, widening rows already collected.
		for _, h := range res.Headers {
			if _, ok := index[h]; !ok {
				index[h] = len(merged.Headers)
				merged.Headers = append(merged.Headers, h)
			}
		}
		for i := range merged.Rows {
			if len(merged.Rows[i]) < len(merged.Headers) {
				widened := make([]*string, len(merged.Headers))
				copy(widened, merged.Rows[i])
				merged.Rows[i] = widened
			}
		}

		for _, row := range res.Rows {
			out := make([]*string, len(merged.Headers))
			for i, h := range res.Headers {
				out[index[h]] = row[i]
			}
			merged.Rows = append(merged.Rows, out)
		}
	}
	return merged, nil
}
