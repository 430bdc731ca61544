package backup

import (
	"crypto/rand"
	_ "embed"
	"fmt"
	"math/big"
	"strings"
)

// PassphraseWords is the number of words in a backup passphrase.
const PassphraseWords = 6

//go:embed wordlist.txt
var wordlistRaw string

var wordlist = strings.Fields(wordlistRaw)

// ValidatePassphrase checks for exactly six lowercase alphabetic words
// separated by single spaces.
func ValidatePassphrase(p string) error {
	words := strings.Split(p, " ")
	if len(words) != PassphraseWords {
		return ErrInvalidPassphrase
	}
	for _, w := range words {
		if w == "" {
			return ErrInvalidPassphrase
		}
		for _, r := range w {
			if r < 'a' || r > 'z' {
				return ErrInvalidPassphrase
			}
		}
	}
	return nil
}

// NormalizePassphrase lower-cases and collapses whitespace so passphrases
// typed by hand validate.
func NormalizePassphrase(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), " ")
}

// GeneratePassphrase picks six words uniformly from the embedded word list.
func GeneratePassphrase() (string, error) {
	max := big.NewInt(int64(len(wordlist)))
	words := make([]string, PassphraseWords)
	for i := range words {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate passphrase: %w", err)
		}
		words[i] = wordlist[n.Int64()]
	}
	return strings.Join(words, " "), nil
}
