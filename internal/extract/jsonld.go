package extract

import (
	"strconv"
	"strings"
)

// movieTypes are the schema.org @type values that identify a film object.
var movieTypes = map[string]bool{"Movie": true, "Film": true}

// findMovie walks a decoded JSON-LD payload and returns the first object
// whose @type is a movie type. The payload may be a single object, an array
// of objects, or a @graph wrapper, nested arbitrarily.
func findMovie(data any) map[string]any {
	var found map[string]any
	walkJSONLD(data, func(obj map[string]any) bool {
		if isMovie(obj["@type"]) {
			found = obj
			return false
		}
		return true
	})
	return found
}

// walkJSONLD visits every plain object in the payload in document order.
// A @graph wrapper contributes its graph members, not itself. The visit
// callback returns false to stop the walk.
func walkJSONLD(data any, visit func(map[string]any) bool) bool {
	switch t := data.(type) {
	case []any:
		for _, el := range t {
			if !walkJSONLD(el, visit) {
				return false
			}
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			return walkJSONLD(graph, visit)
		}
		return visit(t)
	}
	return true
}

// isMovie reports whether a @type value (scalar or list) names a movie.
func isMovie(typeField any) bool {
	switch t := typeField.(type) {
	case string:
		return movieTypes[t]
	case []any:
		for _, el := range t {
			if s, ok := el.(string); ok && movieTypes[s] {
				return true
			}
		}
	}
	return false
}

// asList forces a value into list form: nil stays empty, a list stays
// itself, anything else becomes a single-element list.
func asList(v any) []any {
	if v == nil {
		return nil
	}
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{v}
}

// stringList coerces a scalar-or-list field into trimmed non-empty strings.
// Non-string entries are dropped.
func stringList(v any) []string {
	var out []string
	for _, el := range asList(v) {
		s, ok := el.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// nameList coerces a scalar-or-list credit field whose entries are either
// {"name": ...} objects or plain strings.
func nameList(v any) []string {
	var out []string
	for _, el := range asList(v) {
		switch t := el.(type) {
		case map[string]any:
			if name := strings.TrimSpace(toString(t["name"])); name != "" {
				out = append(out, name)
			}
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// toString renders a JSON scalar as a string; other shapes yield "".
func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// toFloat coerces a JSON number or numeric string.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// toInt coerces a JSON number (truncating) or integer string.
func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
