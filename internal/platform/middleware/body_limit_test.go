package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := map[string]int64{
		"1M":      1 << 20,
		"10mb":    10 << 20,
		" 512K ":  512 << 10,
		"1G":      1 << 30,
		"1024":    1024,
		"":        defaultBodyLimit,
		"0":       defaultBodyLimit,
		"-5K":     defaultBodyLimit,
		"invalid": defaultBodyLimit,
	}
	for input, want := range tests {
		if got := parseLimit(input); got != want {
			t.Errorf("parseLimit(%q) = %d, want %d", input, got, want)
		}
	}
}

// decodePatient binds the way the billing handlers do.
func decodePatient(c echo.Context) error {
	var p struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func TestBodyLimit(t *testing.T) {
	small := `{"first_name":"Ada","last_name":"Lovelace"}`
	large := `{"first_name":"Ada","last_name":"` + strings.Repeat("x", 2048) + `"}`

	tests := []struct {
		name     string
		method   string
		body     string
		streamed bool
		wantCode int
	}{
		{"small body", http.MethodPost, small, false, http.StatusOK},
		{"small streamed body", http.MethodPost, small, true, http.StatusOK},
		{"declared oversize", http.MethodPost, large, false, http.StatusRequestEntityTooLarge},
		{"streamed oversize", http.MethodPost, large, true, http.StatusRequestEntityTooLarge},
		{"no body", http.MethodGet, "", false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body == "" {
				req = httptest.NewRequest(tt.method, "/patients", nil)
			} else {
				req = httptest.NewRequest(tt.method, "/patients", strings.NewReader(tt.body))
			}
			if tt.streamed {
				req.ContentLength = -1
			}
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)

			err := BodyLimit("1K")(func(c echo.Context) error {
				if c.Request().Method == http.MethodGet {
					return c.NoContent(http.StatusOK)
				}
				return decodePatient(c)
			})(c)

			code := rec.Code
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
				if he.Message != "request body exceeds maximum allowed size of 1024 bytes" {
					t.Errorf("unexpected message: %v", he.Message)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, code)
			}
		})
	}
}
