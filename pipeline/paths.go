package pipeline

import "strings"

// PathSet matches request paths against exact paths and "prefix*" patterns.
type PathSet struct {
	exact    map[string]struct{}
	prefixes []string
}

func NewPathSet(patterns ...string) PathSet {
	p := PathSet{exact: make(map[string]struct{})}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			p.prefixes = append(p.prefixes, prefix)
			continue
		}
		p.exact[pattern] = struct{}{}
	}
	return p
}

func (p PathSet) Match(path string) bool {
	if _, ok := p.exact[path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
