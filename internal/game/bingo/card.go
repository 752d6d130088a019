package bingo

import (
	"errors"
	"fmt"
)

// ErrInvalidCard is returned when submitted card data cannot form a playable card.
var ErrInvalidCard = errors.New("invalid card")

// CardData is the client-submitted definition of a card.
type CardData struct {
	ID       string   `json:"id"`
	Words    []string `json:"words"`
	Language string   `json:"language"`
}

// Card is a player's bingo card: a fixed list of words in one language plus
// the subset of those words that has been drawn so far.
//
// Invariant: every key of marked is an element of words.
type Card struct {
	id       string
	words    []string
	language Language
	members  map[string]struct{}
	marked   map[string]struct{}
}

// NewCard validates data and builds an unmarked Card from it.
//
// Precondition: none; any input is accepted and validated.
// Postcondition: Returns a Card with no marked words, or an error wrapping ErrInvalidCard.
func NewCard(data CardData) (*Card, error) {
	if data.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidCard)
	}
	if len(data.Words) == 0 {
		return nil, fmt.Errorf("%w: card %q has no words", ErrInvalidCard, data.ID)
	}
	lang, err := ParseLanguage(data.Language)
	if err != nil {
		return nil, fmt.Errorf("%w: card %q: %v", ErrInvalidCard, data.ID, err)
	}

	words := make([]string, len(data.Words))
	members := make(map[string]struct{}, len(data.Words))
	for i, w := range data.Words {
		if w == "" {
			return nil, fmt.Errorf("%w: card %q has an empty word at position %d", ErrInvalidCard, data.ID, i)
		}
		words[i] = w
		members[w] = struct{}{}
	}

	return &Card{
		id:       data.ID,
		words:    words,
		language: lang,
		members:  members,
		marked:   make(map[string]struct{}, len(members)),
	}, nil
}

// ID returns the card identifier, unique within the owning player.
func (c *Card) ID() string { return c.id }

// Language returns the language the card is played in.
func (c *Card) Language() Language { return c.language }

// Words returns a copy of the card's words in submission order.
func (c *Card) Words() []string {
	out := make([]string, len(c.words))
	copy(out, c.words)
	return out
}

// Has reports whether word appears on the card.
func (c *Card) Has(word string) bool {
	_, ok := c.members[word]
	return ok
}

// MarkWord marks word if it appears on the card. Words not on the card are ignored.
//
// Postcondition: Returns true only when word was on the card and not yet marked.
func (c *Card) MarkWord(word string) bool {
	if !c.Has(word) {
		return false
	}
	if _, done := c.marked[word]; done {
		return false
	}
	c.marked[word] = struct{}{}
	return true
}

// IsMarked reports whether word has been marked on the card.
func (c *Card) IsMarked(word string) bool {
	_, ok := c.marked[word]
	return ok
}

// MarkedCount returns the number of marked words.
func (c *Card) MarkedCount() int { return len(c.marked) }

// MarkedWords returns the marked words in the order they appear on the card.
//
// Postcondition: Never returns nil; the result is a subset of Words().
func (c *Card) MarkedWords() []string {
	out := make([]string, 0, len(c.marked))
	seen := make(map[string]struct{}, len(c.marked))
	for _, w := range c.words {
		if _, ok := c.marked[w]; !ok {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// IsComplete reports whether as many words are marked as the card holds.
// A card that lists the same word twice can therefore never complete.
func (c *Card) IsComplete() bool {
	return len(c.marked) == len(c.words)
}

// ClearMarks unmarks every word. The word list is left intact.
func (c *Card) ClearMarks() {
	clear(c.marked)
}
