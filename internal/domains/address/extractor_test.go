package address

import (
	"strings"
	"testing"

	"carelay/go-backend/internal/domains/contracts"
)

const (
	wrappedSOL   = "So11111111111111111111111111111111111111112"
	usdcMint     = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	systemProgID = "11111111111111111111111111111111"
	shortDecode  = "22222222222222222222222222222222"
	evmFirst     = "0x55d398326f99059fF775485246999027B3197955"
	evmSecond    = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
)

func TestIsSolanaPublicKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "wrapped sol", input: wrappedSOL, want: true},
		{name: "usdc", input: usdcMint, want: true},
		{name: "system program", input: systemProgID, want: true},
		{name: "decodes short", input: shortDecode, want: false},
		{name: "decodes long", input: strings.Repeat("z", 44), want: false},
		{name: "not base58", input: "0OIl" + wrappedSOL[4:], want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsSolanaPublicKey(tc.input); got != tc.want {
				t.Fatalf("unexpected validation result for %q: got=%v want=%v", tc.input, got, tc.want)
			}
		})
	}
}

func TestExtractPrefersLinksOverText(t *testing.T) {
	t.Parallel()

	msg := contracts.InboundMessage{
		Text:  "🔥 new pair " + wrappedSOL,
		Links: []string{"https://t.me/somebot?start=x", "https://pump.fun/coin/" + usdcMint},
	}
	got, ok := Extract(msg, SolanaPattern())
	if !ok {
		t.Fatal("expected an address")
	}
	if got != usdcMint {
		t.Fatalf("unexpected address: got=%q want=%q", got, usdcMint)
	}
}

func TestExtractFallsBackToText(t *testing.T) {
	t.Parallel()

	msg := contracts.InboundMessage{
		Text:  "🔥 check https://x.io/" + wrappedSOL,
		Links: []string{"https://example.com/chart"},
	}
	got, ok := Extract(msg, SolanaPattern())
	if !ok || got != wrappedSOL {
		t.Fatalf("unexpected extraction: got=%q ok=%v want=%q", got, ok, wrappedSOL)
	}
}

func TestExtractSkipsCandidatesFailingValidation(t *testing.T) {
	t.Parallel()

	msg := contracts.InboundMessage{Text: "🔥 " + shortDecode + " then " + usdcMint}
	got, ok := Extract(msg, SolanaPattern())
	if !ok || got != usdcMint {
		t.Fatalf("unexpected extraction: got=%q ok=%v want=%q", got, ok, usdcMint)
	}
}

func TestExtractFirstFoundWinsLeftToRight(t *testing.T) {
	t.Parallel()

	msg := contracts.InboundMessage{Text: "🪙 " + evmFirst + " and " + evmSecond}
	got, ok := Extract(msg, EVMPattern())
	if !ok || got != evmFirst {
		t.Fatalf("unexpected extraction: got=%q ok=%v want=%q", got, ok, evmFirst)
	}
}

func TestExtractEVMAcceptsShapeOnly(t *testing.T) {
	t.Parallel()

	msg := contracts.InboundMessage{Links: []string{"https://x.io/" + evmSecond}}
	got, ok := Extract(msg, EVMPattern())
	if !ok || got != evmSecond {
		t.Fatalf("unexpected extraction: got=%q ok=%v want=%q", got, ok, evmSecond)
	}
}

func TestExtractMiss(t *testing.T) {
	t.Parallel()

	msg := contracts.InboundMessage{Text: "🔥 nothing to see " + shortDecode}
	if got, ok := Extract(msg, SolanaPattern()); ok {
		t.Fatalf("expected no address, got=%q", got)
	}
	if got, ok := Extract(contracts.InboundMessage{}, EVMPattern()); ok {
		t.Fatalf("expected no address in empty message, got=%q", got)
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	t.Parallel()

	msg := contracts.InboundMessage{
		Text:  "🔥 " + usdcMint + " " + wrappedSOL,
		Links: []string{"https://x.io/" + systemProgID},
	}
	first, _ := Extract(msg, SolanaPattern())
	for i := 0; i < 20; i++ {
		got, _ := Extract(msg, SolanaPattern())
		if got != first {
			t.Fatalf("extraction changed between calls: got=%q first=%q", got, first)
		}
	}
}

func TestPatternWithShape(t *testing.T) {
	t.Parallel()

	p, err := EVMPattern().WithShape("")
	if err != nil {
		t.Fatalf("empty override failed: %v", err)
	}
	if p.Shape.String() != EVMShape {
		t.Fatalf("expected built-in shape, got=%q", p.Shape.String())
	}
	if _, err := EVMPattern().WithShape("(["); err == nil {
		t.Fatal("expected compile error for invalid expression")
	}
	strict, err := EVMPattern().WithShape(`\b0x[a-fA-F0-9]{40}\b`)
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if _, ok := Extract(contracts.InboundMessage{Text: evmFirst + "ff"}, strict); ok {
		t.Fatal("expected bounded override to reject a longer hex run")
	}
}
