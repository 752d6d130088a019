// Package bingo provides the word-bingo data model: languages, cards,
// players and the shared per-language word pools.
package bingo

import (
	"fmt"
	"strings"
)

// Language identifies one of the fixed word pools a card can belong to.
type Language string

const (
	Spanish    Language = "spanish"
	English    Language = "english"
	Portuguese Language = "portuguese"
	Dutch      Language = "dutch"
)

// Languages returns the four playable languages in canonical order.
//
// Postcondition: Returns a fresh slice; callers may reorder it.
func Languages() []Language {
	return []Language{Spanish, English, Portuguese, Dutch}
}

// ParseLanguage maps a client-supplied language name to a Language.
// Matching ignores case and surrounding whitespace.
//
// Postcondition: Returns a valid Language or a non-nil error.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown language %q", s)
	}
	return l, nil
}

// Valid reports whether l is one of the four playable languages.
func (l Language) Valid() bool {
	switch l {
	case Spanish, English, Portuguese, Dutch:
		return true
	}
	return false
}

// String returns the wire name of the language.
func (l Language) String() string {
	return string(l)
}
