package pricewatch

import (
	"errors"
	"testing"
)

// WHAT: Tests URL validation for item targets.
// WHY: The browser sits inside the deployment network; targets pointing at
// internal hosts must be rejected before they ever reach it.
func TestValidateTargetURL(t *testing.T) {
	tests := []struct {
		url  string
		want error
	}{
		{"https://shop.example/product/42", nil},
		{"http://shop.example", nil},
		{"ftp://shop.example/x", ErrInvalidURL},
		{"javascript:alert(1)", ErrInvalidURL},
		{"file:///etc/passwd", ErrInvalidURL},
		{"not a url", ErrInvalidURL},
		{"https://", ErrInvalidURL},
		{"http://localhost:8080/admin", ErrBlockedURL},
		{"http://api.localhost/x", ErrBlockedURL},
		{"http://127.0.0.1/x", ErrBlockedURL},
		{"http://0.0.0.0/x", ErrBlockedURL},
		{"http://10.1.2.3/x", ErrBlockedURL},
		{"http://192.168.1.1/x", ErrBlockedURL},
		{"http://172.16.0.1/x", ErrBlockedURL},
		{"http://169.254.169.254/latest/meta-data", ErrBlockedURL},
		{"http://[::1]/x", ErrBlockedURL},
		{"http://[fd00::1]/x", ErrBlockedURL},
		{"http://93.184.216.34/x", nil},
	}
	for _, tc := range tests {
		if got := ValidateTargetURL(tc.url); !errors.Is(got, tc.want) {
			t.Errorf("ValidateTargetURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
