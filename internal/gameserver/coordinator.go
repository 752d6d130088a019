// Package gameserver provides the game coordinator: the player registry, word
// pools and the round engine that draws words and announces winners.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/wordbingo/internal/game/bingo"
	"github.com/cory-johannsen/wordbingo/internal/game/draw"
	"github.com/cory-johannsen/wordbingo/internal/game/session"
)

// ErrStopped is returned by coordinator calls made after Run has returned.
var ErrStopped = errors.New("coordinator stopped")

// Options configures a Coordinator.
type Options struct {
	// DrawInterval is the wait between two words of the same round.
	DrawInterval time.Duration
	// WinPause is the pause after a round won by at least one card.
	WinPause time.Duration
	// ExhaustPause is the pause after a round that ran out of words.
	ExhaustPause time.Duration
	// Source orders rounds and draws words. Defaults to a crypto/rand source.
	Source draw.Source
	// QueueSize is the capacity of the command queue. Defaults to 64.
	QueueSize int
}

// gameState is the coordinator-private game progress.
//
// Invariant: 0 <= roundIndex <= len(roundOrder).
type gameState struct {
	started         bool
	currentLanguage bingo.Language
	roundOrder      []bingo.Language
	roundIndex      int
	winnerLog       []string
	// epoch increases on every reset; continuations from older epochs are dropped.
	epoch uint64
	bag   *draw.Bag
}

// Coordinator owns the player registry, the word pools and the game state,
// and performs all outbound messaging.
//
// All state is confined to the goroutine running Run. Exported methods queue
// a command and wait for it, so commands never overlap. Timed waits inside a
// game are continuations queued by a StepTimer; other commands run between them.
type Coordinator struct {
	logger       *zap.Logger
	src          draw.Source
	drawInterval time.Duration
	winPause     time.Duration
	exhaustPause time.Duration

	registry *session.Registry
	pools    *bingo.WordPool
	state    gameState
	timer    stopper

	// afterFunc schedules fn to run on the command loop after d.
	afterFunc func(d time.Duration, fn func()) stopper

	cmds chan func()
	done chan struct{}
}

// New creates a Coordinator. Call Run to start processing commands.
//
// Precondition: logger must be non-nil; durations must be >= 0.
// Postcondition: Returns an idle Coordinator with empty registry and pools.
func New(opts Options, logger *zap.Logger) *Coordinator {
	src := opts.Source
	if src == nil {
		src = draw.NewCryptoSource()
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 64
	}
	c := &Coordinator{
		logger:       logger,
		src:          src,
		drawInterval: opts.DrawInterval,
		winPause:     opts.WinPause,
		exhaustPause: opts.ExhaustPause,
		registry:     session.NewRegistry(),
		pools:        bingo.NewWordPool(),
		cmds:         make(chan func(), queue),
		done:         make(chan struct{}),
	}
	c.afterFunc = func(d time.Duration, fn func()) stopper {
		return NewStepTimer(d, func() { c.post(fn) })
	}
	return c
}

// Run processes commands until ctx is cancelled. A command that panics is
// logged and does not stop the loop.
//
// Precondition: Run must be called at most once.
// Postcondition: Pending continuations are stopped; later calls return ErrStopped.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	c.logger.Info("coordinator running")
	for {
		select {
		case <-ctx.Done():
			c.stopTimer()
			c.logger.Info("coordinator stopped",
				zap.Int("players", c.registry.Count()),
				zap.Bool("game_started", c.state.started),
			)
			return ctx.Err()
		case cmd := <-c.cmds:
			c.exec(cmd)
		}
	}
}

func (c *Coordinator) exec(cmd func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("coordinator command panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	cmd()
}

// do queues fn and waits until it has run.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Used by timers.
func (c *Coordinator) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

// RegisterPlayer registers a player under id and broadcasts the new player
// count. An existing registration under id is replaced and its cards are
// dropped; if it used a different outbox, that outbox is closed.
//
// Precondition: id must be non-empty; outbox must be non-nil.
// Postcondition: Returns nil once the player is registered, or ErrStopped / ctx.Err().
func (c *Coordinator) RegisterPlayer(ctx context.Context, id, name string, outbox *session.Outbox) error {
	return c.do(ctx, func() { c.registerPlayer(id, name, outbox) })
}

// RemovePlayer removes the player registered under id. Removing an unknown
// id is a no-op. When the last player leaves the game is reset.
func (c *Coordinator) RemovePlayer(ctx context.Context, id string) error {
	return c.do(ctx, func() { c.removePlayer(id) })
}

// Disconnect removes the player registered under id only if it still uses
// outbox, so a closed connection cannot evict a newer registration of the same id.
func (c *Coordinator) Disconnect(ctx context.Context, id string, outbox *session.Outbox) error {
	return c.do(ctx, func() { c.disconnect(id, outbox) })
}

// SubmitCard attaches a card to a registered player and adds its words to the
// card language's pool. Unknown players and malformed cards are ignored.
func (c *Coordinator) SubmitCard(ctx context.Context, playerID string, data bingo.CardData) error {
	return c.do(ctx, func() { c.submitCard(playerID, data) })
}

// RequestStart starts a game on behalf of playerID unless one is already
// running. Requests from unregistered senders are ignored.
func (c *Coordinator) RequestStart(ctx context.Context, playerID string) error {
	return c.do(ctx, func() { c.requestStart(playerID) })
}

// SeedWords adds words to the pools without any player owning them.
func (c *Coordinator) SeedWords(ctx context.Context, words map[bingo.Language][]string) error {
	return c.do(ctx, func() {
		for lang, ws := range words {
			added := c.pools.Add(lang, ws...)
			c.logger.Info("seeded word pool",
				zap.String("language", lang.String()),
				zap.Int("added", added),
				zap.Int("pool_size", c.pools.Size(lang)),
			)
		}
	})
}

// Snapshot is a point-in-time copy of the coordinator's state.
type Snapshot struct {
	Started         bool           `json:"started"`
	CurrentLanguage string         `json:"current_language,omitempty"`
	RoundOrder      []string       `json:"round_order"`
	RoundIndex      int            `json:"round_index"`
	WinnerLog       []string       `json:"winner_log"`
	Players         int            `json:"players"`
	PoolSizes       map[string]int `json:"pool_sizes"`
}

// Snapshot returns a copy of the current game state.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, func() { snap = c.snapshot() })
	if err != nil {
		return Snapshot{}, fmt.Errorf("taking snapshot: %w", err)
	}
	return snap, nil
}

func (c *Coordinator) snapshot() Snapshot {
	order := make([]string, 0, len(c.state.roundOrder))
	for _, l := range c.state.roundOrder {
		order = append(order, l.String())
	}
	sizes := make(map[string]int, 4)
	for l, n := range c.pools.Sizes() {
		sizes[l.String()] = n
	}
	return Snapshot{
		Started:         c.state.started,
		CurrentLanguage: c.state.currentLanguage.String(),
		RoundOrder:      order,
		RoundIndex:      c.state.roundIndex,
		WinnerLog:       append([]string{}, c.state.winnerLog...),
		Players:         c.registry.Count(),
		PoolSizes:       sizes,
	}
}

func (c *Coordinator) registerPlayer(id, name string, outbox *session.Outbox) {
	prev := c.registry.Put(&session.Session{
		Player:   bingo.NewPlayer(id, name),
		Outbox:   outbox,
		JoinedAt: time.Now(),
	})
	if prev != nil {
		c.logger.Warn("player re-registered, previous cards dropped",
			zap.String("player_id", id),
			zap.String("previous_name", prev.Player.Name()),
			zap.Int("dropped_cards", prev.Player.CardCount()),
		)
		if prev.Outbox != outbox {
			prev.Outbox.Close()
		}
	}
	c.logger.Info("player registered",
		zap.String("player_id", id),
		zap.String("name", name),
		zap.Int("players", c.registry.Count()),
	)
	c.broadcast(playerCountMessage(c.registry.Count()))
}

func (c *Coordinator) removePlayer(id string) {
	sess, ok := c.registry.Remove(id)
	if !ok {
		return
	}
	sess.Outbox.Close()
	c.logger.Info("player removed",
		zap.String("player_id", id),
		zap.String("name", sess.Player.Name()),
		zap.Duration("session_duration", time.Since(sess.JoinedAt)),
		zap.Int("players", c.registry.Count()),
	)
	c.broadcast(playerCountMessage(c.registry.Count()))
	if c.registry.Count() == 0 {
		c.reset()
	}
}

func (c *Coordinator) disconnect(id string, outbox *session.Outbox) {
	sess, ok := c.registry.Get(id)
	if !ok || sess.Outbox != outbox {
		return
	}
	c.removePlayer(id)
}

func (c *Coordinator) submitCard(playerID string, data bingo.CardData) {
	sess, ok := c.registry.Get(playerID)
	if !ok {
		c.logger.Debug("card from unregistered player ignored", zap.String("player_id", playerID))
		return
	}
	card, err := bingo.NewCard(data)
	if err != nil {
		c.logger.Debug("malformed card ignored",
			zap.String("player_id", playerID),
			zap.Error(err),
		)
		return
	}
	sess.Player.AddCard(card)
	added := c.pools.Add(card.Language(), card.Words()...)
	c.logger.Info("card submitted",
		zap.String("player_id", playerID),
		zap.String("card_id", card.ID()),
		zap.String("language", card.Language().String()),
		zap.Int("new_pool_words", added),
	)
}

func (c *Coordinator) requestStart(playerID string) {
	if _, ok := c.registry.Get(playerID); !ok {
		c.logger.Debug("play from unregistered player ignored", zap.String("player_id", playerID))
		return
	}
	if c.state.started {
		return
	}
	c.state.roundOrder = draw.Shuffle(c.src, bingo.Languages())
	c.state.roundIndex = 0
	c.state.started = true
	epoch := c.state.epoch

	c.logger.Info("game started",
		zap.Stringers("round_order", c.state.roundOrder),
		zap.Int("players", c.registry.Count()),
		zap.String("requested_by", playerID),
	)
	c.broadcast(gameStartedMessage())
	if !c.active(epoch) {
		return
	}
	c.startRound()
}

// active reports whether the game that was running at epoch is still running.
func (c *Coordinator) active(epoch uint64) bool {
	return c.state.started && c.state.epoch == epoch
}

// schedule runs fn on the command loop after d, unless the game is reset first.
func (c *Coordinator) schedule(d time.Duration, fn func()) {
	epoch := c.state.epoch
	c.stopTimer()
	c.timer = c.afterFunc(d, func() {
		if !c.active(epoch) {
			return
		}
		fn()
	})
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) reset() {
	c.stopTimer()
	c.state = gameState{epoch: c.state.epoch + 1}
	for _, sess := range c.registry.Snapshot() {
		sess.Player.ClearMarks()
	}
	c.logger.Debug("game state reset", zap.Uint64("epoch", c.state.epoch))
}

// broadcast delivers msg to every registered player. Players whose outbox
// rejects the frame are removed once the pass over the snapshot is done.
func (c *Coordinator) broadcast(msg any) {
	frame, err := encode(msg)
	if err != nil {
		c.logger.Error("dropping broadcast", zap.Error(err))
		return
	}
	var failed []string
	for _, sess := range c.registry.Snapshot() {
		if err := sess.Outbox.Push(frame); err != nil {
			c.logger.Warn("broadcast delivery failed",
				zap.String("player_id", sess.ID()),
				zap.Error(err),
			)
			failed = append(failed, sess.ID())
		}
	}
	for _, id := range failed {
		c.removePlayer(id)
	}
}

// unicast delivers msg to one player, removing the player if delivery fails.
func (c *Coordinator) unicast(id string, msg any) {
	sess, ok := c.registry.Get(id)
	if !ok {
		return
	}
	frame, err := encode(msg)
	if err != nil {
		c.logger.Error("dropping unicast", zap.String("player_id", id), zap.Error(err))
		return
	}
	if err := sess.Outbox.Push(frame); err != nil {
		c.logger.Warn("unicast delivery failed",
			zap.String("player_id", id),
			zap.Error(err),
		)
		c.removePlayer(id)
	}
}
