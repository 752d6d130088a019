package bingo

import (
	"slices"
	"sort"
)

// DefaultPlayerName is used when a player registers without a name.
const DefaultPlayerName = "Unknown"

// Player is a connected participant and the cards it has submitted.
//
// Invariant: wordIndex maps every distinct word of every card to exactly the
// IDs of the cards containing it.
type Player struct {
	id        string
	name      string
	cards     map[string]*Card
	wordIndex map[string][]string
}

// NewPlayer creates a Player with no cards.
//
// Precondition: id must be non-empty.
// Postcondition: Returns a Player with the given name and an empty word index.
func NewPlayer(id, name string) *Player {
	return &Player{
		id:        id,
		name:      name,
		cards:     make(map[string]*Card),
		wordIndex: make(map[string][]string),
	}
}

// ID returns the connection identifier of the player.
func (p *Player) ID() string { return p.id }

// Name returns the display name of the player.
func (p *Player) Name() string { return p.name }

// CardCount returns the number of cards the player owns.
func (p *Player) CardCount() int { return len(p.cards) }

// Card returns the card with the given ID.
//
// Postcondition: Returns (card, true) if found, or (nil, false) otherwise.
func (p *Player) Card(id string) (*Card, bool) {
	c, ok := p.cards[id]
	return c, ok
}

// Cards returns the player's cards sorted by ID.
func (p *Player) Cards() []*Card {
	out := make([]*Card, 0, len(p.cards))
	for _, c := range p.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// AddCard attaches card to the player and indexes its words. A card with an
// ID the player already owns replaces the old card.
//
// Precondition: card must be non-nil.
// Postcondition: wordIndex is consistent with the player's cards.
func (p *Player) AddCard(card *Card) {
	if old, ok := p.cards[card.id]; ok {
		p.unindex(old)
	}
	p.cards[card.id] = card
	for w := range card.members {
		p.wordIndex[w] = append(p.wordIndex[w], card.id)
	}
}

func (p *Player) unindex(card *Card) {
	for w := range card.members {
		ids := slices.DeleteFunc(p.wordIndex[w], func(id string) bool { return id == card.id })
		if len(ids) == 0 {
			delete(p.wordIndex, w)
			continue
		}
		p.wordIndex[w] = ids
	}
}

// CardIDsFor returns the IDs of every card containing word, in any language.
func (p *Player) CardIDsFor(word string) []string {
	return slices.Clone(p.wordIndex[word])
}

// MarkWord marks word on every card of the given language that contains it.
// Cards of other languages are left alone even when they list the same word.
//
// Postcondition: Returns the IDs of the cards in language that contain word,
// sorted; never nil.
func (p *Player) MarkWord(word string, language Language) []string {
	touched := make([]string, 0)
	for _, id := range p.wordIndex[word] {
		card, ok := p.cards[id]
		if !ok || card.language != language {
			continue
		}
		card.MarkWord(word)
		touched = append(touched, id)
	}
	sort.Strings(touched)
	return touched
}

// CompletedCards returns the player's fully marked cards in language, sorted by ID.
func (p *Player) CompletedCards(language Language) []*Card {
	var out []*Card
	for _, c := range p.Cards() {
		if c.language == language && c.IsComplete() {
			out = append(out, c)
		}
	}
	return out
}

// ClearMarks unmarks every card the player owns.
func (p *Player) ClearMarks() {
	for _, c := range p.cards {
		c.ClearMarks()
	}
}
