package environment

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.\-]*)\s*\}\}`)

// Placeholders returns the distinct {{NAME}} names in text, in order of first
// appearance. Placeholders are never resolved here.
func Placeholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Unknown returns the placeholders in text that keys does not define.
func Unknown(text string, keys Keys) []string {
	var out []string
	for _, name := range Placeholders(text) {
		if !keys.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Complete suggests key names for a partially typed placeholder, best match
// first. A leading "{{" in prefix is ignored; an empty prefix returns every
// key in sorted order.
func Complete(keys []string, prefix string) []string {
	prefix = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(prefix), "{{"))
	if prefix == "" {
		out := append([]string(nil), keys...)
		sort.Strings(out)
		return out
	}

	matches := fuzzy.Find(prefix, keys)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}

// Resolve replaces every placeholder lookup knows with its value. Unknown
// placeholders are left as written. Only the host's sender calls this; values
// never pass through an extension.
func Resolve(text string, lookup func(name string) (string, bool)) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := lookup(name); ok {
			return v
		}
		return match
	})
}
