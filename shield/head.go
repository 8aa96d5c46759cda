package shield

import "net/http"

// HeadToGet turns HEAD into GET so routes registered with r.Get() answer
// HEAD requests from uptime checkers and CDNs. net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
