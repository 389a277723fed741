package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"crmbridge/internal/privacy"
	"crmbridge/internal/service"
	"crmbridge/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DebugLoggingConfig controls request dumps written at debug level
type DebugLoggingConfig struct {
	MaxBodySize      int
	SensitiveHeaders []string
	SkipPaths        []string
}

// DefaultDebugLoggingConfig masks credentials and skips probe endpoints
func DefaultDebugLoggingConfig() DebugLoggingConfig {
	return DebugLoggingConfig{
		MaxBodySize:      4096,
		SensitiveHeaders: []string{"authorization", "x-api-key", "cookie"},
		SkipPaths:        []string{"/health", "/metrics"},
	}
}

// DebugLogging dumps request headers and JSON bodies with secrets and phone
// numbers masked. It is a no-op unless the logger is at debug level.
func DebugLogging(logger *logrus.Logger, config DebugLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.IsLevelEnabled(logrus.DebugLevel) || skipPath(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			fields := logrus.Fields{
				service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
				service.LogFieldMethod:    r.Method,
				service.LogFieldURL:       r.URL.Path,
				"content_length":          r.ContentLength,
				"request_headers":         maskHeaders(r.Header, config.SensitiveHeaders),
			}

			if body, ok := readJSONBody(r, config.MaxBodySize); ok {
				fields["request_body"] = body
			}

			logger.WithFields(fields).Debug("Request dump")
			next.ServeHTTP(w, r)
		})
	}
}

func skipPath(path string, skip []string) bool {
	for _, p := range skip {
		if path == p {
			return true
		}
	}
	return false
}

func maskHeaders(header http.Header, sensitive []string) map[string]string {
	out := make(map[string]string, len(header))
	for name, values := range header {
		if isSensitiveHeader(name, sensitive) {
			out[name] = privacy.MaskSecret(strings.Join(values, ", "))
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func isSensitiveHeader(name string, sensitive []string) bool {
	for _, s := range sensitive {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// readJSONBody reads a small JSON object body, restores it for the handler
// and returns it with sensitive fields masked
func readJSONBody(r *http.Request, limit int) (map[string]interface{}, bool) {
	if r.Body == nil || !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return nil, false
	}
	if r.ContentLength <= 0 || r.ContentLength > int64(limit) {
		return nil, false
	}

	orig := r.Body
	raw, err := io.ReadAll(io.LimitReader(orig, int64(limit)))
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(raw), orig), Closer: orig}
	if err != nil {
		return nil, false
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false
	}
	return privacy.MaskSensitiveFields(decoded), true
}

type replayBody struct {
	io.Reader
	io.Closer
}
