package query

import (
	"regexp"
	"strings"
	"sync"
)

// LikeToRegexp translates a SQL LIKE pattern into an anchored regular
// expression: % is any run, _ is one character, a backslash escapes the next
// character.
func LikeToRegexp(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	escaped := false
	for _, r := range pattern {
		if escaped {
			sb.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		sb.WriteString(`\\`)
	}
	sb.WriteString("$")
	return sb.String()
}

var likeCache sync.Map

func compileLike(pattern string) *regexp.Regexp {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile("(?s)" + LikeToRegexp(pattern))
	likeCache.Store(pattern, re)
	return re
}
