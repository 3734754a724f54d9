package hash

import (
	"encoding/hex"
	"testing"
)

func TestSHA256(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string // hex encoded
	}{
		{
			name:     "empty input",
			input:    []byte{},
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "hello world",
			input:    []byte("Hello, World!"),
			expected: "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f",
		},
		{
			name:     "single byte",
			input:    []byte("a"),
			expected: "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb",
		},
		{
			name:     "domain-separation seed",
			input:    []byte("project lockbox"),
			expected: "f8657722dcf23717c11a9dd98eda951acc165a54fbb483198de5da9c7aa1c66d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SHA256(tt.input)
			resultHex := hex.EncodeToString(result)

			if resultHex != tt.expected {
				t.Errorf("SHA256() = %s, want %s", resultHex, tt.expected)
			}

			if len(result) != 32 {
				t.Errorf("SHA256() returned %d bytes, want 32", len(result))
			}
		})
	}
}
