// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// Render replaces {name}, {name.field} and {name['field']} with session
// variables. Variables holding JSON are walked by path. A missing key
// renders as <missing:key>, a step into a non-object as <invalid:key>.
func Render(text string, vars map[string]string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		return format(lookup(strings.TrimSpace(m[1:len(m)-1]), vars))
	})
}

// urlPart is where a placeholder sits inside a URL template.
type urlPart int

const (
	partOrigin urlPart = iota
	partPath
	partQuery
	partFragment
)

// RenderURL is Render for URL templates. Values placed in the path are
// escaped as single path segments, values after '?' as query components and
// values after '#' as fragments, so a variable cannot add segments, query
// parameters or fragments of its own. Placeholders before the path, such as
// {base_url}, are substituted as is.
func RenderURL(text string, vars map[string]string) string {
	if !strings.Contains(text, "{") {
		return text
	}

	var (
		b       strings.Builder
		literal strings.Builder
		last    int
	)
	for _, loc := range placeholder.FindAllStringIndex(text, -1) {
		b.WriteString(text[last:loc[0]])
		literal.WriteString(text[last:loc[0]])
		last = loc[1]

		value := format(lookup(strings.TrimSpace(text[loc[0]+1:loc[1]-1]), vars))
		b.WriteString(escapeURLValue(urlPartOf(literal.String()), value))
	}
	b.WriteString(text[last:])
	return b.String()
}

// urlPartOf classifies the position right after the literal template text.
func urlPartOf(literal string) urlPart {
	switch {
	case strings.Contains(literal, "#"):
		return partFragment
	case strings.Contains(literal, "?"):
		return partQuery
	}
	rest := literal
	if i := strings.Index(literal, "://"); i >= 0 {
		rest = literal[i+3:]
	}
	if strings.Contains(rest, "/") {
		return partPath
	}
	return partOrigin
}

func escapeURLValue(part urlPart, value string) string {
	switch part {
	case partPath:
		if value == "." || value == ".." {
			return strings.Repeat("%2E", len(value))
		}
		return url.PathEscape(value)
	case partQuery:
		return url.QueryEscape(value)
	case partFragment:
		return url.PathEscape(value)
	default:
		return value
	}
}

func lookup(expr string, vars map[string]string) any {
	parts := strings.FieldsFunc(expr, func(r rune) bool {
		return r == '.' || r == '[' || r == ']' || r == '\'' || r == '"'
	})
	if len(parts) == 0 {
		return "{" + expr + "}"
	}

	raw, ok := vars[parts[0]]
	if !ok {
		return "<missing:" + parts[0] + ">"
	}
	var value any = raw

	for _, p := range parts[1:] {
		if s, isString := value.(string); isString {
			value = decode(s)
		}
		switch v := value.(type) {
		case map[string]any:
			next, found := v[p]
			if !found {
				value = "<missing:" + p + ">"
				continue
			}
			value = next
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(v) {
				value = "<missing:" + p + ">"
				continue
			}
			value = v[i]
		default:
			return "<invalid:" + p + ">"
		}
	}
	return value
}

// decode parses s when it holds a JSON object or array.
func decode(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return s
	}
	return v
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
