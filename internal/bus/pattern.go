package bus

import "strings"

// MatchTopic reports whether a binding pattern matches a routing key using
// topic-exchange semantics: keys and patterns are dot-segmented, "*" matches
// exactly one segment, "#" matches zero or more segments.
func MatchTopic(pattern, key string) bool {
	if pattern == key {
		return true
	}
	return matchSegments(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchSegments(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}
			// Try consuming zero or more key segments.
			for i := 0; i <= len(key); i++ {
				if matchSegments(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || pattern[0] != key[0] {
				return false
			}
		}
		pattern = pattern[1:]
		key = key[1:]
	}
	return len(key) == 0
}
