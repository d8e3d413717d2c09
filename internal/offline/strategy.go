package offline

import (
	"net/http"
	"regexp"
	"strings"
)

// resourceClass partitions intercepted requests; each class maps to exactly
// one serving strategy.
type resourceClass int

const (
	classStatic resourceClass = iota
	classAPI
	classNavigation
	classDynamic
)

// staticExtPattern matches fingerprinted build assets: safe to cache
// aggressively because content changes mean filename changes.
var staticExtPattern = regexp.MustCompile(`\.(js|css|png|jpe?g|gif|svg|webp|ico|woff2?|ttf|eot|map)$`)

// classify buckets a GET request into exactly one resource class.
func classify(r *http.Request, apiPrefix string) resourceClass {
	path := r.URL.Path
	if staticExtPattern.MatchString(path) {
		return classStatic
	}
	if strings.HasPrefix(path, apiPrefix) || (r.URL.Host != "" && r.URL.Host != r.Host) {
		return classAPI
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return classNavigation
	}
	return classDynamic
}

// tierFor maps a resource class to the cache tier its responses live in.
func tierFor(class resourceClass) string {
	switch class {
	case classStatic:
		return TierStatic
	case classAPI:
		return TierAPI
	default:
		return TierDynamic
	}
}
