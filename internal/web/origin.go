package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// requestOrigin is the Origin header, or the origin of the Referer when the
// browser left Origin out.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}

	referer, err := url.Parse(r.Header.Get("Referer"))
	if err != nil || referer.Host == "" {
		return ""
	}

	return referer.Scheme + "://" + referer.Host
}

// checkOrigin rejects state changing requests sent from pages the server did
// not serve and whose origin is not allowed. Requests carrying neither Origin
// nor Referer do not come from a browser page and pass.
func checkOrigin(allowed []string, log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		origin := requestOrigin(r)
		if origin == "" || sameHost(origin, r.Host) || allowedOrigin(allowed, origin) {
			next.ServeHTTP(w, r)
			return
		}

		log.WithFields(logrus.Fields{"origin": origin, "path": r.URL.Path}).Warn("cross-origin request rejected")
		http.Error(w, "Forbidden.", http.StatusForbidden)
	})
}

func sameHost(origin string, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return u.Host != "" && strings.EqualFold(u.Host, host)
}

func allowedOrigin(allowed []string, origin string) bool {
	for _, value := range allowed {
		if value == "*" || strings.EqualFold(value, origin) {
			return true
		}
	}

	return false
}
