package config

import (
	"sort"
	"strings"
)

// secretKeys are dot keys whose values are credentials.
var secretKeys = map[string]bool{
	"api.token": true,
}

func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns nested sections into dot keys, so {"api": {"base_url": x}}
// becomes {"api.base_url": x}. Slices stay whole; empty sections vanish.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(path []string, section map[string]any)
	walk = func(path []string, section map[string]any) {
		for k, v := range section {
			p := append(path[:len(path):len(path)], k)
			if child, ok := v.(map[string]any); ok {
				walk(p, child)
				continue
			}
			out[strings.Join(p, ".")] = v
		}
	}
	walk(nil, m)
	return out
}

// Unflatten rebuilds nested sections from dot keys. A scalar in the way of
// a deeper key is replaced by a section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		section := out
		for _, part := range parts[:len(parts)-1] {
			section = childSection(section, part)
		}
		section[parts[len(parts)-1]] = v
	}
	return out
}

func childSection(parent map[string]any, name string) map[string]any {
	if m, ok := parent[name].(map[string]any); ok {
		return m
	}
	m := make(map[string]any)
	parent[name] = m
	return m
}

// MaskSecrets copies flat with every non-empty secret string reduced to
// "***" plus its last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		s, ok := v.(string)
		if !secretKeys[k] || !ok || s == "" {
			continue
		}
		out[k] = "***" + s[max(0, len(s)-4):]
	}
	return out
}

// Keys returns the keys of flat in sorted order.
func Keys(flat map[string]any) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
