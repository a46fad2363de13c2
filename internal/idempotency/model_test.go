package idempotency

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"client uuid", "9b2f2c1e-8d1a-4f5b-9c3e-1a2b3c4d5e6f", nil},
		{"short token", "retry-1", nil},
		{"exactly max length", strings.Repeat("k", MaxKeyLength), nil},
		{"empty", "", ErrInvalidKey},
		{"over max length", strings.Repeat("k", MaxKeyLength+1), ErrKeyTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestComputeResponseHash(t *testing.T) {
	body := `{"listing_id":"l1","final_score":31.5,"grade":"B"}`

	h1 := ComputeResponseHash(body)
	h2 := ComputeResponseHash(body)
	if h1 != h2 {
		t.Error("hash not stable for identical response bodies")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars of sha256", len(h1))
	}
	if h1 == ComputeResponseHash(body+" ") {
		t.Error("distinct bodies produced the same hash")
	}
}
