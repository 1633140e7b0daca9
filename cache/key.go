package cache

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key derives the cache key of a request. Query parameters are canonicalised
// (keys sorted, repeated values kept in request order), so ?a=1&b=2 and
// ?b=2&a=1 share a key. A non-empty body contributes its xxhash64 digest.
func Key(method, rawURL string, body []byte) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')

	u, err := url.Parse(rawURL)
	if err != nil {
		b.WriteString(rawURL)
	} else {
		if u.Host != "" {
			b.WriteString(u.Scheme)
			b.WriteString("://")
			b.WriteString(u.Host)
		}
		b.WriteString(u.EscapedPath())
		if q := u.Query().Encode(); q != "" {
			b.WriteByte('?')
			b.WriteString(q)
		}
	}

	if len(body) > 0 {
		b.WriteByte('#')
		b.WriteString(strconv.FormatUint(xxhash.Sum64(body), 16))
	}
	return b.String()
}
