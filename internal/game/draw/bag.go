package draw

// Permutation returns a uniformly random ordering of [0, n).
//
// Precondition: n >= 0; src must be non-nil.
// Postcondition: The result contains every int in [0, n) exactly once.
func Permutation(src Source, n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// Shuffle returns a shuffled copy of items.
func Shuffle[T any](src Source, items []T) []T {
	out := make([]T, len(items))
	for i, idx := range Permutation(src, len(items)) {
		out[i] = items[idx]
	}
	return out
}

// Bag draws words uniformly at random without replacement.
// A Bag is not safe for concurrent use.
type Bag struct {
	src   Source
	words []string
}

// NewBag creates a Bag holding a copy of words.
//
// Precondition: src must be non-nil.
// Postcondition: Remaining() == len(words).
func NewBag(src Source, words []string) *Bag {
	cp := make([]string, len(words))
	copy(cp, words)
	return &Bag{src: src, words: cp}
}

// Draw removes and returns one random word.
//
// Postcondition: Returns ("", false) once the bag is empty; no entry is ever
// returned twice.
func (b *Bag) Draw() (string, bool) {
	n := len(b.words)
	if n == 0 {
		return "", false
	}
	i := b.src.Intn(n)
	w := b.words[i]
	b.words[i] = b.words[n-1]
	b.words = b.words[:n-1]
	return w, true
}

// Remaining returns the number of words not yet drawn.
func (b *Bag) Remaining() int {
	return len(b.words)
}
