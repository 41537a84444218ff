package address

import "carelay/go-backend/internal/domains/contracts"

// Extract returns the first validated address found in msg. Hyperlink
// references are scanned before the raw text, each left to right; the
// first candidate passing validation wins.
func Extract(msg contracts.InboundMessage, pattern Pattern) (string, bool) {
	for _, link := range msg.Links {
		if found, ok := firstValid(link, pattern); ok {
			return found, true
		}
	}
	return firstValid(msg.Text, pattern)
}

func firstValid(input string, pattern Pattern) (string, bool) {
	if input == "" || pattern.Shape == nil {
		return "", false
	}
	for _, candidate := range pattern.Shape.FindAllString(input, -1) {
		if pattern.accept(candidate) {
			return candidate, true
		}
	}
	return "", false
}
