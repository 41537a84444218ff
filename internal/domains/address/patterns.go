package address

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58/base58"
)

const (
	solanaPublicKeySize = 32

	SolanaShape = `[1-9A-HJ-NP-Za-km-z]{32,44}`
	EVMShape    = `0x[a-fA-F0-9]{40}`
)

// Validator accepts or rejects a structural match.
type Validator func(candidate string) bool

// Pattern pairs a structural shape with an optional validator. A nil
// validator accepts every shape match.
type Pattern struct {
	Name      string
	Shape     *regexp.Regexp
	Validator Validator
}

func (p Pattern) accept(candidate string) bool {
	if p.Validator == nil {
		return true
	}
	return p.Validator(candidate)
}

// IsSolanaPublicKey reports whether candidate decodes from base58 into a
// 32-byte public key.
func IsSolanaPublicKey(candidate string) bool {
	decoded, err := base58.Decode(candidate)
	if err != nil {
		return false
	}
	return len(decoded) == solanaPublicKeySize
}

func SolanaPattern() Pattern {
	return Pattern{
		Name:      "solana",
		Shape:     regexp.MustCompile(SolanaShape),
		Validator: IsSolanaPublicKey,
	}
}

// EVMPattern relies on the shape alone.
func EVMPattern() Pattern {
	return Pattern{
		Name:  "evm",
		Shape: regexp.MustCompile(EVMShape),
	}
}

// WithShape returns a copy of p using an overriding expression; an empty
// expression keeps the built-in shape.
func (p Pattern) WithShape(expr string) (Pattern, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return p, nil
	}
	shape, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("compile %s pattern: %w", p.Name, err)
	}
	p.Shape = shape
	return p, nil
}
