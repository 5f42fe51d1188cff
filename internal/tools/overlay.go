// ABOUTME: Per-tool fixed argument overlay merged over remote-supplied arguments
// ABOUTME: Uses sjson so unrelated argument bytes are preserved untouched

package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Overlay pins argument values per tool: tool name -> argument name -> value.
type Overlay map[string]map[string]any

// Apply merges the overlay entries for tool into rawArgs. Overlay values win.
// Empty rawArgs is treated as an empty object.
func (o Overlay) Apply(tool, rawArgs string) (string, error) {
	raw := strings.TrimSpace(rawArgs)
	if raw == "" {
		raw = "{}"
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return "", fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
	}

	fixed := o[tool]
	if len(fixed) == 0 {
		return raw, nil
	}

	keys := make([]string, 0, len(fixed))
	for k := range fixed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var err error
	for _, k := range keys {
		raw, err = sjson.Set(raw, gjson.Escape(k), fixed[k])
		if err != nil {
			return "", fmt.Errorf("%w: overlaying %q: %v", ErrInvalidArguments, k, err)
		}
	}
	return raw, nil
}

// Merge returns a new overlay with other layered over o.
func (o Overlay) Merge(other Overlay) Overlay {
	out := make(Overlay, len(o)+len(other))
	for _, src := range []Overlay{o, other} {
		for tool, args := range src {
			dst := out[tool]
			if dst == nil {
				dst = make(map[string]any, len(args))
				out[tool] = dst
			}
			for k, v := range args {
				dst[k] = v
			}
		}
	}
	return out
}
