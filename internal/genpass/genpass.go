// Package genpass is a CLI convenience for generating and scoring
// candidate passwords. It never touches vault state or crypto — it exists
// purely so vaultctl can offer `add --generate` the way the teacher's
// generator.go served its own CLI.
//
// Adapted from the teacher's internal/pwmanager/generator.go
// (GeneratePassword/AnalyzePasswordStrength), renamed into this package
// and given an Options literal with sane defaults instead of requiring
// every flag to be set by the caller.
package genpass

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"

	"github.com/mozilla-lockbox/lockbox-vault/internal/vaulterr"
)

// Options controls which character classes a generated password draws
// from and how long it is.
type Options struct {
	Length           int
	IncludeUpper     bool
	IncludeLower     bool
	IncludeNumbers   bool
	IncludeSymbols   bool
	ExcludeSimilar   bool // i, l, 1, L, o, 0, O
	ExcludeAmbiguous bool // { } [ ] ( ) / \ ' " ` , ; : . < >
}

// DefaultOptions is a reasonable 16-character password drawing from every
// character class, with ambiguous/similar characters stripped for easy
// transcription.
func DefaultOptions() Options {
	return Options{
		Length:           16,
		IncludeUpper:     true,
		IncludeLower:     true,
		IncludeNumbers:   true,
		IncludeSymbols:   true,
		ExcludeSimilar:   true,
		ExcludeAmbiguous: true,
	}
}

const (
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	numberChars  = "0123456789"
	symbolChars  = "!@#$%^&*_+-="
	similarChars = "il1Lo0O"
	ambigChars   = "{}[]()/'\"`,;:.<>\\"
)

// Generate creates a new password from opts, using a fresh random
// character at every position and a final Fisher-Yates shuffle so the
// mandatory one-per-class characters aren't predictably front-loaded.
func Generate(opts Options) (string, error) {
	var chars strings.Builder
	if opts.IncludeUpper {
		chars.WriteString(upperChars)
	}
	if opts.IncludeLower {
		chars.WriteString(lowerChars)
	}
	if opts.IncludeNumbers {
		chars.WriteString(numberChars)
	}
	if opts.IncludeSymbols {
		chars.WriteString(symbolChars)
	}

	strip := func(set string) string {
		if opts.ExcludeSimilar {
			for _, c := range similarChars {
				set = strings.ReplaceAll(set, string(c), "")
			}
		}
		if opts.ExcludeAmbiguous {
			for _, c := range ambigChars {
				set = strings.ReplaceAll(set, string(c), "")
			}
		}
		return set
	}
	charSet := strip(chars.String())
	if charSet == "" {
		return "", vaulterr.New(vaulterr.InvalidItem, "no character classes selected")
	}

	length := opts.Length
	if length < 4 {
		length = 12
	}

	var result strings.Builder
	if opts.IncludeUpper {
		c, err := randomChar(strip(upperChars))
		if err != nil {
			return "", err
		}
		result.WriteByte(c)
		length--
	}
	if opts.IncludeLower {
		c, err := randomChar(strip(lowerChars))
		if err != nil {
			return "", err
		}
		result.WriteByte(c)
		length--
	}
	if opts.IncludeNumbers {
		c, err := randomChar(strip(numberChars))
		if err != nil {
			return "", err
		}
		result.WriteByte(c)
		length--
	}
	if opts.IncludeSymbols {
		c, err := randomChar(strip(symbolChars))
		if err != nil {
			return "", err
		}
		result.WriteByte(c)
		length--
	}

	for i := 0; i < length; i++ {
		c, err := randomChar(charSet)
		if err != nil {
			return "", err
		}
		result.WriteByte(c)
	}

	password := []rune(result.String())
	for i := len(password) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", vaulterr.Wrap(vaulterr.Storage, "shuffle password", err)
		}
		password[i], password[j.Int64()] = password[j.Int64()], password[i]
	}

	return string(password), nil
}

func randomChar(chars string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.Storage, "draw random character", err)
	}
	return chars[n.Int64()], nil
}

// Strength scores a candidate password from 0-100 with short, actionable
// feedback lines.
func Strength(password string) (score int, feedback []string) {
	if len(password) == 0 {
		return 0, []string{"password is empty"}
	}

	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSymbol = true
		}
	}

	categories := 0
	for _, ok := range []bool{hasUpper, hasLower, hasNumber, hasSymbol} {
		if ok {
			categories++
		}
	}

	lengthScore := len(password) * 2
	if lengthScore > 40 {
		lengthScore = 40
	}
	score = lengthScore + categories*10

	feedback = make([]string, 0)
	if len(password) < 8 {
		feedback = append(feedback, "password is too short")
	}
	if !hasUpper || !hasLower {
		feedback = append(feedback, "mix upper and lowercase letters")
	}
	if !hasNumber {
		feedback = append(feedback, "add numbers")
	}
	if !hasSymbol {
		feedback = append(feedback, "add symbols")
	}

	if len(password) >= 12 && categories == 4 {
		score += 20
	} else if len(password) >= 10 && categories >= 3 {
		score += 10
	}
	if score > 100 {
		score = 100
	}

	switch {
	case score >= 80:
		feedback = append(feedback, "strong password")
	case score >= 60:
		feedback = append(feedback, "good password, could be stronger")
	case score >= 40:
		feedback = append(feedback, "moderate password, consider strengthening")
	default:
		feedback = append(feedback, "weak password, needs improvement")
	}

	return score, feedback
}
