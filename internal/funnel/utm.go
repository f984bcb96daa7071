package funnel

import (
	"net/url"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

// UTMFromQuery captures the non-empty campaign parameters of a landing URL.
func UTMFromQuery(q url.Values) map[string]string {
	utm := make(map[string]string)
	for _, k := range domain.UTMKeys {
		if v := q.Get(k); v != "" {
			utm[k] = v
		}
	}
	return utm
}
