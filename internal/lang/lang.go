// Package lang classifies chat text into the two supported languages.
package lang

import "strings"

// Tag identifies a reply language.
type Tag string

const (
	Russian   Tag = "ru"
	Ukrainian Tag = "uk"
)

// Default is returned on ties and for text without markers.
const Default = Ukrainian

var markers = map[Tag][]string{
	Russian:   {"привет", "здравствуйте", "сколько", "цена", "доставка", "адрес", "меню", "оплата", "резерв"},
	Ukrainian: {"привіт", "скільки", "ціна", "доставка", "адреса", "меню", "оплата", "бронювання", "режим"},
}

// Detect counts marker substrings of each language in text and returns
// Russian only when its count is strictly higher.
func Detect(text string) Tag {
	lower := strings.ToLower(text)
	if score(lower, Russian) > score(lower, Ukrainian) {
		return Russian
	}
	return Default
}

func score(lower string, tag Tag) int {
	n := 0
	for _, m := range markers[tag] {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}

// Parse normalizes a configured language. ok is false for anything other
// than "ru" or "uk", which callers treat as per-message detection.
func Parse(s string) (Tag, bool) {
	switch Tag(strings.ToLower(strings.TrimSpace(s))) {
	case Russian:
		return Russian, true
	case Ukrainian:
		return Ukrainian, true
	}
	return "", false
}

// Policy picks the reply language for a message.
type Policy struct {
	fixed Tag
}

// NewPolicy returns a policy pinned to configured when it parses, or a
// detecting policy otherwise.
func NewPolicy(configured string) Policy {
	tag, _ := Parse(configured)
	return Policy{fixed: tag}
}

// For returns the pinned language or detects it from text.
func (p Policy) For(text string) Tag {
	if p.fixed != "" {
		return p.fixed
	}
	return Detect(text)
}

// Fixed reports the pinned language, if any.
func (p Policy) Fixed() (Tag, bool) {
	return p.fixed, p.fixed != ""
}

func (t Tag) String() string { return string(t) }
