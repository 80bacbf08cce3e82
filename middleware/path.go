package middleware

import (
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/utils"
)

const invalidPathMessage = "invalid request path"

// encodedSeparators are escapes that would make the router and the policy
// table split a path differently
var encodedSeparators = []string{"%2f", "%2e", "%5c"}

// canonicalPath returns the request path if it is already clean. Dot
// segments, repeated slashes, backslashes and encoded separators are
// refused so the gate, the policy table and the router all see the same
// segments.
func canonicalPath(r *http.Request) (string, bool) {
	p := r.URL.Path
	if p == "" {
		p = "/"
	}
	if cleanPath(p) != p || strings.Contains(p, `\`) {
		return "", false
	}
	if raw := strings.ToLower(r.URL.RawPath); raw != "" {
		for _, enc := range encodedSeparators {
			if strings.Contains(raw, enc) {
				return "", false
			}
		}
	}
	return p, true
}

// cleanPath resolves dot segments, keeping a trailing slash
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func rejectPath(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	logger.Warn("rejected non-canonical path",
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("raw_path", r.URL.EscapedPath()))
	_ = utils.WriteBadRequest(w, invalidPathMessage, nil)
}
