package hash_test

import (
	"encoding/hex"
	"fmt"

	"github.com/mozilla-lockbox/lockbox-vault/internal/hash"
)

func ExampleSHA256() {
	data := []byte("Hello, World!")
	hashValue := hash.SHA256(data)

	fmt.Printf("SHA-256: %s\n", hex.EncodeToString(hashValue))
	fmt.Printf("Length: %d bytes\n", len(hashValue))
	// Output:
	// SHA-256: dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f
	// Length: 32 bytes
}
