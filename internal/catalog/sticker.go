package catalog

import "strings"

// StickerInfo is the result of classifying an item's exclusivity sticker.
type StickerInfo struct {
	IsStickered bool
	StickerType string
	Multiplier  float64
	IsChase     bool
}

type stickerRule struct {
	nameTokens      []string
	exclusiveTokens []string
	stickerType     string
	multiplier      float64
	isChase         bool
}

// Ordered by priority: chase variants outrank convention stickers, which
// outrank store exclusives.
var stickerRules = []stickerRule{
	{[]string{"CHASE"}, []string{"CHASE"}, "CHASE", 4.0, true},
	{[]string{"SDCC"}, []string{"SAN DIEGO COMIC CON"}, "SDCC", 3.5, false},
	{[]string{"NYCC"}, []string{"NEW YORK COMIC CON"}, "NYCC", 3.0, false},
	{[]string{"ECCC"}, []string{"EMERALD CITY COMIC CON"}, "ECCC", 2.8, false},
	{[]string{"FUNKO SHOP"}, []string{"FUNKO SHOP"}, "FUNKO SHOP", 2.5, false},
	{[]string{"HOT TOPIC"}, []string{"HOT TOPIC"}, "HOT TOPIC", 1.8, false},
	{[]string{"GAMESTOP"}, []string{"GAMESTOP"}, "GAMESTOP", 1.6, false},
	{[]string{"TARGET"}, []string{"TARGET"}, "TARGET", 1.5, false},
	{[]string{"WALMART"}, []string{"WALMART"}, "WALMART", 1.4, false},
	{[]string{"BARNES"}, []string{"BARNES"}, "BARNES & NOBLE", 1.3, false},
}

// DetectSticker classifies an item name and optional exclusivity label into
// sticker metadata and the value multiplier the aggregator applies.
func DetectSticker(name, exclusive string) StickerInfo {
	nameUpper := strings.ToUpper(name)
	exclusiveUpper := strings.ToUpper(exclusive)

	for _, rule := range stickerRules {
		if matchesAny(nameUpper, rule.nameTokens) || matchesAny(exclusiveUpper, rule.exclusiveTokens) {
			return StickerInfo{
				IsStickered: true,
				StickerType: rule.stickerType,
				Multiplier:  rule.multiplier,
				IsChase:     rule.isChase,
			}
		}
	}

	// Unrecognized exclusives still carry a modest premium.
	if exclusive != "" {
		return StickerInfo{IsStickered: true, StickerType: "EXCLUSIVE", Multiplier: 1.2}
	}
	return StickerInfo{Multiplier: 1.0}
}

func matchesAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}
