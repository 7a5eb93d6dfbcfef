package curlfuzz

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestTargetURL(t *testing.T) {
	tests := []struct {
		target   Target
		expected string
	}{
		{Target{Host: "10.187.2.200", Port: 9797}, "http://10.187.2.200:9797"},
		{Target{Host: "example.com", Port: 443, Secure: true}, "https://example.com:443"},
		{Target{Host: "::1", Port: 8080}, "http://[::1]:8080"},
	}

	for _, tt := range tests {
		if actual := tt.target.URL(); actual != tt.expected {
			t.Fatalf("Expected %s, got %s", tt.expected, actual)
		}
	}
}

func TestResponseHashAndSize(t *testing.T) {
	response := &Response{StatusCode: 200, Body: []byte("body")}

	sum := sha256.Sum256([]byte("body"))
	if response.Hash() != hex.EncodeToString(sum[:]) {
		t.Fatalf("Unexpected hash %s", response.Hash())
	}

	if response.Size() != 4 {
		t.Fatalf("Expected size 4, got %d", response.Size())
	}
}
