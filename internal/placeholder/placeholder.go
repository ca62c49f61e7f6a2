// Package placeholder handles {{name}} substitution in write-action templates.
package placeholder

import (
	"encoding/json"
	"net/url"
	"regexp"
)

var pattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Names returns the distinct placeholder names of template in order of
// first appearance.
func Names(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range pattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Missing returns the names with no value in vars, in order.
func Missing(names []string, vars map[string]string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Escaper transforms a value before it is inserted into a template.
type Escaper func(string) string

// JSON escapes a value for use inside a JSON string literal.
func JSON(v string) string {
	b, _ := json.Marshal(v)
	return string(b[1 : len(b)-1])
}

// Path escapes a value for use as a URL path segment.
func Path(v string) string {
	return url.PathEscape(v)
}

// Render substitutes every placeholder with its escaped value. Placeholders
// without a value are left untouched.
func Render(template string, vars map[string]string, escape Escaper) string {
	return pattern.ReplaceAllStringFunc(template, func(match string) string {
		name := pattern.FindStringSubmatch(match)[1]
		v, ok := vars[name]
		if !ok {
			return match
		}
		if escape != nil {
			return escape(v)
		}
		return v
	})
}
