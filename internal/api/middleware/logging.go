package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/logging"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-Id"

	bodyLimit = 8 * 1024
	redacted  = "***redacted***"
)

// sensitiveKeys are compared lowercased.
var sensitiveKeys = map[string]bool{
	"password":        true,
	"currentpassword": true,
	"newpassword":     true,
	"token":           true,
	"refreshtoken":    true,
	"cardnumber":      true,
	"cvc":             true,
	"cvv":             true,
	"secret":          true,
	"authorization":   true,
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	buf    bytes.Buffer
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if remain := bodyLimit - w.buf.Len(); remain > 0 {
		if len(b) > remain {
			w.buf.Write(b[:remain])
		} else {
			w.buf.Write(b)
		}
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// RedactJSON masks sensitive fields at any depth. Bodies that are not JSON
// are returned unchanged.
func RedactJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return raw
	}
	out, err := json.Marshal(scrub(doc))
	if err != nil {
		return raw
	}
	return out
}

func scrub(x any) any {
	switch v := x.(type) {
	case map[string]any:
		for k, val := range v {
			if sensitiveKeys[strings.ToLower(k)] {
				v[k] = redacted
				continue
			}
			v[k] = scrub(val)
		}
		return v
	case []any:
		for i := range v {
			v[i] = scrub(v[i])
		}
		return v
	default:
		return v
	}
}

func readCapped(rc io.ReadCloser, n int) ([]byte, bool) {
	defer rc.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, rc)
	b := buf.Bytes()
	return b, len(b) > n
}

// RequestLogger logs every request with its status and duration and puts a
// request-scoped logger into the context. JSON bodies are logged with
// credentials and card data masked.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			l := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", ClientIP(r),
			)

			var reqBody string
			if strings.Contains(r.Header.Get("Content-Type"), "application/json") && r.Body != nil {
				body, truncated := readCapped(r.Body, bodyLimit)
				r.Body = io.NopCloser(bytes.NewReader(body))
				logged := body
				if truncated {
					logged = body[:bodyLimit]
				}
				reqBody = string(RedactJSON(logged))
				if truncated {
					reqBody += "...truncated..."
				}
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(logging.WithCtx(r.Context(), l)))

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"status", status,
				"dur_ms", time.Since(start).Milliseconds(),
				"resp_bytes", rec.bytes,
			}
			if reqBody != "" {
				attrs = append(attrs, "req_body", reqBody)
			}
			if status >= http.StatusBadRequest && strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
				attrs = append(attrs, "resp_body", string(RedactJSON(rec.buf.Bytes())))
			}

			switch {
			case status >= http.StatusInternalServerError:
				l.Error("http_request", attrs...)
			case status >= http.StatusBadRequest:
				l.Warn("http_request", attrs...)
			default:
				l.Info("http_request", attrs...)
			}
		})
	}
}

// Recover turns a panic into a 500 with the standard error body.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				logging.FromCtx(r.Context()).Error("panic serving request", "panic", p)
				respondError(w, "internal server error", "internal", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ClientIP prefers the first X-Forwarded-For hop.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
