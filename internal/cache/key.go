package cache

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// Key derives the deterministic cache key for a request. Identical
// {method, url, body} triples always map to the same key, which is what lets
// the in-flight registry collapse duplicate calls; any difference in one of
// the three fields yields a different key. The url is length-prefixed and
// the body digest always occupies the final fixed-width segment, so no url
// suffix can masquerade as another request's body digest. The body is
// hashed so large payloads don't bloat the key space.
func Key(method, url string, body []byte) string {
	b := &strings.Builder{}
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(':')
	fmt.Fprintf(b, "%d", len(url))
	b.WriteByte(':')
	b.WriteString(url)
	b.WriteByte(':')
	fmt.Fprintf(b, "%x", md5.Sum(body))
	return b.String()
}
