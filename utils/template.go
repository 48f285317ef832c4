package utils

import "strings"

// MatchKey checks a dotted key ("workers.manage") against a pattern that may
// end in a '*' wildcard ("workers.*", "*"). The wildcard matches any suffix.
func MatchKey(key, pattern string) bool {
	if pattern == "*" || pattern == key {
		return true
	}
	if i := strings.IndexByte(pattern, '*'); i != -1 {
		prefix := pattern[:i]
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	}
	return false
}

// ExpandTemplate substitutes ':' parameters in an href template with values
// from params. Parameters run until the next '/'. Unknown parameters are left
// in place so a half-wired template is visible instead of silently empty.
//
//	ExpandTemplate("/workers/:id/ledger", map[string]string{"id": "42"})
//	  => "/workers/42/ledger"
func ExpandTemplate(template string, params map[string]string) string {
	if !strings.ContainsRune(template, ':') {
		return template
	}
	var b strings.Builder
	b.Grow(len(template))
	i := 0
	for i < len(template) {
		ch := template[i]
		if ch != ':' {
			b.WriteByte(ch)
			i++
			continue
		}
		j := i + 1
		for j < len(template) && template[j] != '/' {
			j++
		}
		name := template[i+1 : j]
		if v, ok := params[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(template[i:j])
		}
		i = j
	}
	return b.String()
}

// TemplateParams returns the parameter names referenced by an href template,
// in order of appearance.
func TemplateParams(template string) []string {
	var out []string
	for i := 0; i < len(template); i++ {
		if template[i] != ':' {
			continue
		}
		j := i + 1
		for j < len(template) && template[j] != '/' {
			j++
		}
		if j > i+1 {
			out = append(out, template[i+1:j])
		}
		i = j
	}
	return out
}
