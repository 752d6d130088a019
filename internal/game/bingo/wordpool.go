package bingo

import (
	"sort"
	"sync"
)

// WordPool holds every distinct word ever submitted for each language.
// Words are never removed, so cards of players who stay remain playable
// after the submitting player leaves. The coordinator goroutine is its only
// writer; the lock keeps direct use from other goroutines, as in tests, race free.
type WordPool struct {
	mu    sync.RWMutex
	words map[Language]map[string]struct{}
}

// NewWordPool creates a WordPool with an empty set for each language.
func NewWordPool() *WordPool {
	words := make(map[Language]map[string]struct{}, 4)
	for _, l := range Languages() {
		words[l] = make(map[string]struct{})
	}
	return &WordPool{words: words}
}

// Add inserts words into the pool for language. Empty strings are skipped.
//
// Precondition: language must be valid.
// Postcondition: Returns the number of words that were not already present.
func (wp *WordPool) Add(language Language, words ...string) int {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	set, ok := wp.words[language]
	if !ok {
		return 0
	}
	added := 0
	for _, w := range words {
		if w == "" {
			continue
		}
		if _, exists := set[w]; exists {
			continue
		}
		set[w] = struct{}{}
		added++
	}
	return added
}

// Words returns a sorted snapshot of the pool for language.
//
// Postcondition: Later additions do not affect the returned slice.
func (wp *WordPool) Words(language Language) []string {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	set := wp.words[language]
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether word is in the pool for language.
func (wp *WordPool) Contains(language Language, word string) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	_, ok := wp.words[language][word]
	return ok
}

// Size returns the number of distinct words in the pool for language.
func (wp *WordPool) Size(language Language) int {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return len(wp.words[language])
}

// Sizes returns the pool size of every language.
func (wp *WordPool) Sizes() map[Language]int {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	out := make(map[Language]int, len(wp.words))
	for l, set := range wp.words {
		out[l] = len(set)
	}
	return out
}
