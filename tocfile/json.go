package tocfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/tailscale/hujson"
)

// parseJSON reads {"Title": page, ...}. Comments and trailing commas are
// allowed. Duplicate titles are rejected rather than silently collapsed.
func parseJSON(data []byte) (map[string]int, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSONC: %w", ErrInvalidTOC, err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidTOC, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: top level must be an object of title to page", ErrInvalidTOC)
	}

	out := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidTOC, err)
		}
		title, _ := tok.(string)
		if _, dup := out[title]; dup {
			return nil, fmt.Errorf("%w: duplicate title %q", ErrInvalidTOC, title)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: title %q: %w", ErrInvalidTOC, title, err)
		}
		num, ok := value.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: title %q: page must be a number, got %T", ErrInvalidTOC, title, value)
		}
		page, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: title %q: page %s is not an integer", ErrInvalidTOC, title, num)
		}
		if page < 0 || page > math.MaxInt32 {
			return nil, fmt.Errorf("%w: title %q: page %d out of range", ErrInvalidTOC, title, page)
		}
		out[title] = int(page)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidTOC, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrInvalidTOC)
	}
	return out, nil
}
