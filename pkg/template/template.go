// Package template renders node configuration strings against the execution
// context. The syntax is intentionally tiny: {{path.to.value}} substitutes the
// stringified value at the path, and {{helper path}} runs a named helper over
// the resolved value (the built-in "json" helper serializes it as compact
// JSON). Missing or malformed paths render as empty strings so a typo in a
// user-authored template never crashes a run.
package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/flowlineio/flowline/pkg/models"
)

var exprPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Helper transforms a resolved context value into its rendered text.
type Helper func(value any) string

// Resolver renders templates with an explicit helper set. Helpers are carried
// per instance rather than registered globally; everything that renders
// templates receives the same Resolver by reference.
type Resolver struct {
	helpers map[string]Helper
}

// NewResolver returns a Resolver with the built-in "json" helper.
func NewResolver() *Resolver {
	r := &Resolver{helpers: make(map[string]Helper)}
	r.helpers["json"] = func(value any) string {
		if value == nil {
			return ""
		}

		raw, err := json.Marshal(value)
		if err != nil {
			return ""
		}

		return string(raw)
	}

	return r
}

// RegisterHelper adds or replaces a named helper. Registration is expected at
// construction time, before the resolver is shared.
func (r *Resolver) RegisterHelper(name string, helper Helper) {
	r.helpers[name] = helper
}

// Render substitutes every {{...}} expression in the template against the
// context. It is pure and total: unresolvable expressions become empty
// strings and a template without expressions is returned unchanged.
func (r *Resolver) Render(template string, context models.ExecutionContext) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	return exprPattern.ReplaceAllStringFunc(template, func(match string) string {
		expr := strings.TrimSpace(exprPattern.FindStringSubmatch(match)[1])

		return r.renderExpr(expr, context)
	})
}

// Unresolved returns the expressions in the template whose paths did not
// resolve against the context. Callers may surface these as warnings; they
// never abort execution.
func (r *Resolver) Unresolved(template string, context models.ExecutionContext) []string {
	var missing []string

	for _, match := range exprPattern.FindAllStringSubmatch(template, -1) {
		expr := strings.TrimSpace(match[1])

		_, path := splitExpr(expr)
		if _, ok := Lookup(context, path); !ok {
			missing = append(missing, expr)
		}
	}

	return missing
}

func (r *Resolver) renderExpr(expr string, context models.ExecutionContext) string {
	helperName, path := splitExpr(expr)

	value, ok := Lookup(context, path)
	if !ok {
		return ""
	}

	if helperName != "" {
		helper, known := r.helpers[helperName]
		if !known {
			return ""
		}

		return helper(value)
	}

	return stringify(value)
}

// splitExpr separates an optional helper name from the path, e.g.
// "json a.b" -> ("json", "a.b") and "a.b" -> ("", "a.b").
func splitExpr(expr string) (string, string) {
	fields := strings.Fields(expr)
	if len(fields) == 2 {
		return fields[0], fields[1]
	}

	return "", expr
}

// Lookup resolves a dotted/bracketed path ("a.b", "items[0].name") against
// the context. The boolean reports whether the full path resolved.
func Lookup(context models.ExecutionContext, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = map[string]any(context)

	for _, segment := range splitPath(path) {
		switch typed := current.(type) {
		case map[string]any:
			value, ok := typed[segment]
			if !ok {
				return nil, false
			}

			current = value
		case models.ExecutionContext:
			value, ok := typed[segment]
			if !ok {
				return nil, false
			}

			current = value
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(typed) {
				return nil, false
			}

			current = typed[idx]
		default:
			return nil, false
		}
	}

	return current, true
}

// splitPath breaks "items[0].name" into ["items", "0", "name"].
func splitPath(path string) []string {
	replaced := strings.NewReplacer("[", ".", "]", "").Replace(path)

	parts := strings.Split(replaced, ".")
	segments := parts[:0]

	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}

	return segments
}

// stringify is the default-to-string conversion: numbers and booleans render
// as literal text, nil as empty, strings as-is, and structured values as
// compact JSON.
func stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case json.Number:
		return typed.String()
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return ""
		}

		return string(raw)
	}
}
