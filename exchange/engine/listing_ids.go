package engine

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"
)

const (
	codeLength     = 8
	codeMaxRetries = 5
)

// CodeGenerator produces short public listing codes (8 base32 characters).
// The in-process set only dedupes within one replica; the unique constraint
// on listings.code is the real guarantee.
type CodeGenerator struct {
	used sync.Map
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{}
}

func (g *CodeGenerator) Generate() (string, error) {
	for i := 0; i < codeMaxRetries; i++ {
		// 5 random bytes encode to exactly 8 base32 characters.
		bytes := make([]byte, 5)
		if _, err := rand.Read(bytes); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}

		code := strings.ToUpper(base32.StdEncoding.EncodeToString(bytes)[:codeLength])

		if _, exists := g.used.LoadOrStore(code, true); !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique listing code after %d attempts", codeMaxRetries)
}
