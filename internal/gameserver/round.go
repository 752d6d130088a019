package gameserver

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/wordbingo/internal/game/draw"
)

// startRound begins the round at roundIndex, or ends the game when every
// language has been played.
func (c *Coordinator) startRound() {
	if c.state.roundIndex >= len(c.state.roundOrder) {
		c.endGame()
		return
	}
	epoch := c.state.epoch
	lang := c.state.roundOrder[c.state.roundIndex]
	c.state.currentLanguage = lang
	// Candidates are fixed here; cards submitted during the round only feed later rounds.
	c.state.bag = draw.NewBag(c.src, c.pools.Words(lang))

	c.logger.Info("round started",
		zap.String("language", lang.String()),
		zap.Int("round", c.state.roundIndex+1),
		zap.Int("candidates", c.state.bag.Remaining()),
	)
	c.broadcast(roundStartMessage(lang, c.state.roundIndex, len(c.state.roundOrder)))
	if !c.active(epoch) {
		return
	}
	c.drawStep()
}

// drawStep draws one word, applies it to every player and either ends the
// round or schedules the next draw.
func (c *Coordinator) drawStep() {
	epoch := c.state.epoch
	lang := c.state.currentLanguage

	word, ok := c.state.bag.Draw()
	if !ok {
		c.finishRound(nil)
		return
	}
	c.logger.Debug("word drawn",
		zap.String("language", lang.String()),
		zap.String("word", word),
		zap.Int("remaining", c.state.bag.Remaining()),
	)

	for _, sess := range c.registry.Snapshot() {
		// Skip players dropped by an earlier failed delivery in this pass.
		if cur, ok := c.registry.Get(sess.ID()); !ok || cur != sess {
			continue
		}
		ids := sess.Player.MarkWord(word, lang)
		c.unicast(sess.ID(), wordSelectedMessage(word, lang, ids))
		if !c.active(epoch) {
			return
		}
	}

	var winners []Winner
	for _, sess := range c.registry.Snapshot() {
		for _, card := range sess.Player.CompletedCards(lang) {
			winners = append(winners, newWinner(sess.Player.Name(), card))
		}
	}
	if len(winners) > 0 {
		c.finishRound(winners)
		return
	}
	c.schedule(c.drawInterval, c.drawStep)
}

// finishRound announces the round result, then waits before the next round.
// An empty winners list means the word pool ran out.
func (c *Coordinator) finishRound(winners []Winner) {
	epoch := c.state.epoch
	lang := c.state.currentLanguage
	c.state.bag = nil

	for _, w := range winners {
		c.state.winnerLog = append(c.state.winnerLog, w.Name)
	}
	c.logger.Info("round ended",
		zap.String("language", lang.String()),
		zap.Int("round", c.state.roundIndex+1),
		zap.Int("winning_cards", len(winners)),
	)
	c.broadcast(roundEndMessage(lang, winners))
	if !c.active(epoch) {
		return
	}

	pause := c.exhaustPause
	if len(winners) > 0 {
		pause = c.winPause
	}
	c.schedule(pause, func() {
		c.state.roundIndex++
		c.startRound()
	})
}

// endGame announces the distinct winners of the game and resets.
func (c *Coordinator) endGame() {
	winners := uniqueNames(c.state.winnerLog)
	c.logger.Info("game ended",
		zap.Strings("winners", winners),
		zap.Int("winning_cards", len(c.state.winnerLog)),
	)
	c.broadcast(gameEndMessage(winners))
	c.reset()
}
