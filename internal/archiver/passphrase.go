package archiver

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/IliaW/url-scrape-archiver/config"
)

const DefaultCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type PassphraseGenerator struct {
	length  int
	charset []rune
}

func NewPassphraseGenerator(length int, charset string) (*PassphraseGenerator, error) {
	if length < config.MinPassphraseLength {
		return nil, fmt.Errorf("passphrase length %d is below %d", length, config.MinPassphraseLength)
	}
	if charset == "" {
		charset = DefaultCharset
	}
	runes := []rune(charset)
	if len(runes) < 2 {
		return nil, fmt.Errorf("passphrase charset needs at least 2 characters")
	}

	return &PassphraseGenerator{length: length, charset: runes}, nil
}

// Generate draws every character uniformly from the charset using crypto/rand.
func (g *PassphraseGenerator) Generate() (string, error) {
	out := make([]rune, g.length)
	limit := big.NewInt(int64(len(g.charset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate passphrase: %w", err)
		}
		out[i] = g.charset[n.Int64()]
	}

	return string(out), nil
}
