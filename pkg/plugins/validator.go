package plugins

import "fmt"

// Reason classifies why a manifest was rejected
type Reason string

const (
	ReasonMalformedDocument   Reason = "malformed_document"
	ReasonMissingField        Reason = "missing_field"
	ReasonInvalidType         Reason = "invalid_type"
	ReasonPermissionsNotArray Reason = "permissions_not_array"
	ReasonInvalidCategory     Reason = "invalid_category"
)

// Result is the outcome of validating one manifest document. When
// Accepted is false, Reason names the first admission check that
// failed; Field and Value carry the offending field name or value
// where the reason has one.
type Result struct {
	Accepted bool
	Reason   Reason
	Field    string
	Value    string
}

// String renders the result for skip logging.
func (r Result) String() string {
	switch {
	case r.Accepted:
		return "accepted"
	case r.Field != "":
		return fmt.Sprintf("%s: %s", r.Reason, r.Field)
	case r.Value != "":
		return fmt.Sprintf("%s: %q", r.Reason, r.Value)
	default:
		return string(r.Reason)
	}
}

// requiredFields is checked in this fixed order so a manifest missing
// several fields always reports the same first one.
var requiredFields = []string{"name", "version", "author", "type", "entry", "permissions"}

var validTypes = map[string]bool{
	string(PluginTypeJS):   true,
	string(PluginTypeWASM): true,
}

var validCategories = map[string]bool{
	string(CategoryAudio):   true,
	string(CategoryUI):      true,
	string(CategoryLyrics):  true,
	string(CategoryLibrary): true,
	string(CategoryUtility): true,
}

// Validate decides whether a decoded manifest document is admitted to
// the registry. It is a pure function over the document: no I/O, and
// repeated calls on the same input return the same result. Checks run
// in a fixed order and short-circuit, so exactly one reason is
// reported per rejected document. Unknown fields pass through
// unexamined; optional-field defaulting happens during entry
// normalization, not here.
func Validate(doc any) Result {
	m, ok := asMapping(doc)
	if !ok {
		return Result{Reason: ReasonMalformedDocument}
	}

	for _, field := range requiredFields {
		if isEmptyValue(m[field]) {
			return Result{Reason: ReasonMissingField, Field: field}
		}
	}

	if t := scalarString(m["type"]); !validTypes[t] {
		return Result{Reason: ReasonInvalidType, Value: t}
	}

	if _, ok := m["permissions"].([]any); !ok {
		return Result{Reason: ReasonPermissionsNotArray}
	}

	if c, present := m["category"]; present && !isEmptyValue(c) {
		if cat := scalarString(c); !validCategories[cat] {
			return Result{Reason: ReasonInvalidCategory, Value: cat}
		}
	}

	return Result{Accepted: true}
}

// asMapping returns the document as a generic mapping if it decoded to
// one. Anything else (arrays, scalars, nil from an undecodable body)
// counts as malformed.
func asMapping(doc any) (map[string]any, bool) {
	switch m := doc.(type) {
	case map[string]any:
		return m, true
	case RawManifest:
		return m, true
	default:
		return nil, false
	}
}

// isEmptyValue reports whether a required field should be treated as
// absent. Manifests are authored loosely, so emptiness follows the
// source format's notion of falsiness: missing, null, "", false and 0
// are all empty; an empty array is not.
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case float64:
		return val == 0
	default:
		return false
	}
}

// scalarString renders a scalar field for set-membership checks and
// error reporting without assuming the author used a string.
func scalarString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
