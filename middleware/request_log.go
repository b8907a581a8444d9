package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
	"gorm.io/datatypes"

	"crowpro-api/models"
)

const redacted = "[redacted]"

var (
	sensitiveHeaders = map[string]bool{
		"Authorization": true,
		"Cookie":        true,
	}
	sensitiveFields = map[string]bool{
		"password":         true,
		"password_confirm": true,
		"new_password":     true,
		"refresh":          true,
		"access":           true,
	}
)

// RequestRecorder persists one telemetry row per request.
type RequestRecorder interface {
	Record(ctx context.Context, entry *models.RequestLog) error
}

// GeoLocator resolves a client address to a country name and time zone.
type GeoLocator interface {
	Locate(ip net.IP) (country, timezone string, err error)
}

// GeoIP looks addresses up in a MaxMind GeoIP2/GeoLite2 city database.
type GeoIP struct {
	reader *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{reader: reader}, nil
}

func (g *GeoIP) Locate(ip net.IP) (string, string, error) {
	city, err := g.reader.City(ip)
	if err != nil {
		return "", "", err
	}
	return city.Country.Names["en"], city.Location.TimeZone, nil
}

func (g *GeoIP) Close() error {
	return g.reader.Close()
}

// RequestLog records the request after the handler has written its response.
// geo may be nil. Recording failures are logged and never reach the client.
func RequestLog(recorder RequestRecorder, geo GeoLocator, maxBody int, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		body := captureBody(c.Request, maxBody)

		c.Next()

		entry := &models.RequestLog{
			Method:     c.Request.Method,
			Path:       c.Request.URL.RequestURI(),
			Body:       body,
			RemoteAddr: c.ClientIP(),
			Referrer:   c.Request.Referer(),
			UserAgent:  c.Request.UserAgent(),
			StatusCode: c.Writer.Status(),
			DurationMs: float64(time.Since(start).Microseconds()) / 1000,
		}

		if user := CurrentUser(c); user != nil {
			entry.UserID = &user.ID
		}

		if headers, err := json.Marshal(redactHeaders(c.Request.Header)); err == nil {
			entry.Headers = datatypes.JSON(headers)
		}

		if entry.UserAgent != "" {
			entry.Device, entry.Browser, entry.OS = classifyUserAgent(entry.UserAgent)
		}

		if geo != nil {
			if ip := net.ParseIP(entry.RemoteAddr); ip != nil {
				if country, tz, err := geo.Locate(ip); err == nil {
					entry.Country, entry.Timezone = country, tz
				}
			}
		}

		ctx := context.WithoutCancel(c.Request.Context())
		if err := recorder.Record(ctx, entry); err != nil {
			log.WarnContext(ctx, "record request log", "path", entry.Path, "error", err)
		}
	}
}

// captureBody reads up to maxBody bytes of a write request and puts them back
// in front of the unread remainder.
func captureBody(r *http.Request, maxBody int) string {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return ""
	}
	if r.Body == nil || maxBody <= 0 {
		return ""
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return "<multipart form>"
	}

	head := make([]byte, maxBody)
	n, err := io.ReadFull(r.Body, head)
	head = head[:n]
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}

	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "<unreadable body>"
	}

	truncated := n == maxBody
	return redactBody(head, truncated)
}

func redactBody(raw []byte, truncated bool) string {
	var fields map[string]any
	if !truncated && json.Unmarshal(raw, &fields) == nil {
		for k := range fields {
			if sensitiveFields[strings.ToLower(k)] {
				fields[k] = redacted
			}
		}
		if out, err := json.Marshal(fields); err == nil {
			return string(out)
		}
	}

	// Partial JSON cannot be redacted field by field.
	for k := range sensitiveFields {
		if bytes.Contains(raw, []byte(`"`+k+`"`)) {
			return redacted
		}
	}
	if truncated {
		return string(raw) + "..."
	}
	return string(raw)
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if sensitiveHeaders[http.CanonicalHeaderKey(k)] {
			out[k] = redacted
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func classifyUserAgent(raw string) (device, browser, os string) {
	ua := useragent.New(raw)

	platform := strings.ToLower(ua.Platform())
	switch {
	case ua.Bot():
		device = "Bot"
	case strings.Contains(platform, "ipad") || strings.Contains(strings.ToLower(raw), "tablet"):
		device = "Tablet"
	case ua.Mobile():
		device = "Mobile"
	default:
		device = "PC"
	}

	name, version := ua.Browser()
	browser = strings.TrimSpace(name + " " + version)
	os = ua.OS()
	return device, browser, os
}
