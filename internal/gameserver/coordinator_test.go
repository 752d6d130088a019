package gameserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/wordbingo/internal/game/bingo"
	"github.com/cory-johannsen/wordbingo/internal/game/draw"
	"github.com/cory-johannsen/wordbingo/internal/game/session"
)

// lastSource always picks the highest index: round order stays canonical
// (spanish, english, portuguese, dutch) and a bag draws its words in reverse
// alphabetical order.
type lastSource struct{}

func (lastSource) Intn(n int) int { return n - 1 }

// manualScheduler records continuations so tests can fire them one at a time.
type manualScheduler struct {
	steps []*manualStep
}

type manualStep struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (s *manualStep) Stop() { s.stopped = true }

func (m *manualScheduler) after(d time.Duration, fn func()) stopper {
	st := &manualStep{d: d, fn: fn}
	m.steps = append(m.steps, st)
	return st
}

// fireNext runs the oldest continuation that has not been stopped.
func (m *manualScheduler) fireNext() (time.Duration, bool) {
	for len(m.steps) > 0 {
		st := m.steps[0]
		m.steps = m.steps[1:]
		if st.stopped {
			continue
		}
		st.fn()
		return st.d, true
	}
	return 0, false
}

// drain fires continuations until none remain and returns their delays.
func (m *manualScheduler) drain(t *testing.T) []time.Duration {
	t.Helper()
	var delays []time.Duration
	for i := 0; ; i++ {
		require.Less(t, i, 10000, "scheduler did not go idle")
		d, ok := m.fireNext()
		if !ok {
			return delays
		}
		delays = append(delays, d)
	}
}

func newTestCoordinator(t *testing.T, src draw.Source) (*Coordinator, *manualScheduler) {
	t.Helper()
	c := New(Options{
		DrawInterval: 2 * time.Second,
		WinPause:     8 * time.Second,
		ExhaustPause: 5 * time.Second,
		Source:       src,
	}, zaptest.NewLogger(t))
	m := &manualScheduler{}
	c.afterFunc = m.after
	return c, m
}

func join(c *Coordinator, id, name string) *session.Outbox {
	out := session.NewOutbox(id, 4096)
	c.registerPlayer(id, name, out)
	return out
}

type frame struct {
	Type string `json:"type"`
	raw  []byte
}

// readFrames drains every frame currently queued in o.
func readFrames(t require.TestingT, o *session.Outbox) []frame {
	var out []frame
	for {
		select {
		case data, ok := <-o.Frames():
			if !ok {
				return out
			}
			var f frame
			require.NoError(t, json.Unmarshal(data, &f))
			f.raw = data
			out = append(out, f)
		default:
			return out
		}
	}
}

func decodeAs[T any](t require.TestingT, f frame) T {
	var v T
	require.NoError(t, json.Unmarshal(f.raw, &v))
	return v
}

func ofType(fs []frame, typ string) []frame {
	var out []frame
	for _, f := range fs {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func types(fs []frame) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Type)
	}
	return out
}

func card(id string, lang bingo.Language, words ...string) bingo.CardData {
	return bingo.CardData{ID: id, Words: words, Language: string(lang)}
}

func TestRegisterPlayer_BroadcastsCount(t *testing.T) {
	c, _ := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	bob := join(c, "u2", "Bob")

	af := readFrames(t, alice)
	require.Len(t, af, 2)
	assert.Equal(t, 1, decodeAs[PlayerCountMessage](t, af[0]).Count)
	assert.Equal(t, 2, decodeAs[PlayerCountMessage](t, af[1]).Count)

	bf := readFrames(t, bob)
	require.Len(t, bf, 1)
	assert.Equal(t, 2, decodeAs[PlayerCountMessage](t, bf[0]).Count)
}

func TestRemovePlayer_RedundantIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	bob := join(c, "u2", "Bob")
	readFrames(t, alice)

	c.removePlayer("u2")
	c.removePlayer("u2")
	c.removePlayer("ghost")

	af := readFrames(t, alice)
	require.Len(t, af, 1)
	assert.Equal(t, 1, decodeAs[PlayerCountMessage](t, af[0]).Count)
	assert.True(t, bob.IsClosed())
	assert.Equal(t, 1, c.registry.Count())
}

func TestRemovePlayer_LogsSessionDuration(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := New(Options{Source: lastSource{}}, zap.New(core))
	c.registerPlayer("u1", "Alice", session.NewOutbox("u1", 8))

	c.removePlayer("u1")

	entries := logs.FilterMessage("player removed").All()
	require.Len(t, entries, 1)
	field, ok := entries[0].ContextMap()["session_duration"]
	require.True(t, ok)
	assert.GreaterOrEqual(t, field.(time.Duration), time.Duration(0))
}

func TestSubmitCard_AddsWordsToPool(t *testing.T) {
	c, _ := newTestCoordinator(t, lastSource{})
	join(c, "u1", "Alice")

	c.submitCard("u1", card("c1", bingo.English, "cat", "dog"))
	c.submitCard("u1", card("c2", bingo.English, "dog", "sun"))

	assert.Equal(t, []string{"cat", "dog", "sun"}, c.pools.Words(bingo.English))
	sess, _ := c.registry.Get("u1")
	assert.Equal(t, 2, sess.Player.CardCount())
}

func TestSubmitCard_UnregisteredAndMalformedIgnored(t *testing.T) {
	c, _ := newTestCoordinator(t, lastSource{})
	join(c, "u1", "Alice")

	c.submitCard("ghost", card("c1", bingo.English, "cat"))
	c.submitCard("u1", bingo.CardData{ID: "c2", Words: []string{"perro"}, Language: "klingon"})
	c.submitCard("u1", bingo.CardData{Words: []string{"perro"}, Language: "spanish"})
	c.submitCard("u1", bingo.CardData{ID: "c3", Language: "spanish"})

	for _, l := range bingo.Languages() {
		assert.Zero(t, c.pools.Size(l), "pool %s must stay empty", l)
	}
	sess, _ := c.registry.Get("u1")
	assert.Zero(t, sess.Player.CardCount())
}

func TestRequestStart_TwiceIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	c.submitCard("u1", card("c1", bingo.Spanish, "uno", "dos"))

	c.requestStart("u1")
	c.requestStart("u1")

	fs := readFrames(t, alice)
	assert.Len(t, ofType(fs, TypeGameStarted), 1)
	assert.Len(t, ofType(fs, TypeRoundStart), 1)
	assert.True(t, c.state.started)
}

func TestRequestStart_UnregisteredSenderIgnored(t *testing.T) {
	c, m := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	c.submitCard("u1", card("c1", bingo.Spanish, "uno", "dos"))
	readFrames(t, alice)

	c.requestStart("stranger")

	assert.False(t, c.state.started)
	assert.Empty(t, readFrames(t, alice))
	assert.Empty(t, m.steps)

	c.requestStart("u1")
	assert.True(t, c.state.started)
}

func TestSinglePlayerWinsSpanishRound(t *testing.T) {
	c, m := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	c.submitCard("u1", card("c1", bingo.Spanish, "uno", "dos", "tres"))

	c.requestStart("u1")
	delays := m.drain(t)

	// two draw intervals, the win pause, then three exhausted rounds
	assert.Equal(t, []time.Duration{
		2 * time.Second, 2 * time.Second, 8 * time.Second,
		5 * time.Second, 5 * time.Second, 5 * time.Second,
	}, delays)

	fs := readFrames(t, alice)
	assert.Equal(t, []string{
		TypePlayerCount, TypeGameStarted,
		TypeRoundStart, TypeWordSelected, TypeWordSelected, TypeWordSelected, TypeRoundEnd,
		TypeRoundStart, TypeRoundEnd,
		TypeRoundStart, TypeRoundEnd,
		TypeRoundStart, TypeRoundEnd,
		TypeGameEnd,
	}, types(fs))

	rs := decodeAs[RoundStartMessage](t, fs[2])
	assert.Equal(t, RoundStartMessage{Type: TypeRoundStart, Language: "spanish", RoundNumber: 1, TotalRounds: 4}, rs)

	var drawn []string
	for _, f := range ofType(fs, TypeWordSelected) {
		ws := decodeAs[WordSelectedMessage](t, f)
		assert.Equal(t, "spanish", ws.Language)
		assert.Equal(t, []string{"c1"}, ws.CardIDs)
		drawn = append(drawn, ws.Word)
	}
	assert.Equal(t, []string{"uno", "tres", "dos"}, drawn)

	ends := ofType(fs, TypeRoundEnd)
	first := decodeAs[RoundEndMessage](t, ends[0])
	assert.Equal(t, "spanish", first.Language)
	require.Len(t, first.Winners, 1)
	assert.Equal(t, Winner{
		Name: "Alice",
		Card: WinnerCard{
			ID:          "c1",
			Words:       []string{"uno", "dos", "tres"},
			Language:    "spanish",
			MarkedWords: []string{"uno", "dos", "tres"},
		},
	}, first.Winners[0])
	for _, f := range ends[1:] {
		re := decodeAs[RoundEndMessage](t, f)
		assert.NotNil(t, re.Winners)
		assert.Empty(t, re.Winners)
	}
	assert.Contains(t, string(ends[1].raw), `"winners":[]`)

	end := decodeAs[GameEndMessage](t, fs[len(fs)-1])
	assert.Equal(t, []string{"Alice"}, end.Winners)

	// reset: marks cleared, words and pools kept
	assert.False(t, c.state.started)
	assert.Zero(t, c.state.roundIndex)
	assert.Empty(t, c.state.winnerLog)
	sess, _ := c.registry.Get("u1")
	cd, _ := sess.Player.Card("c1")
	assert.Zero(t, cd.MarkedCount())
	assert.Equal(t, []string{"uno", "dos", "tres"}, cd.Words())
	assert.Equal(t, 3, c.pools.Size(bingo.Spanish))
}

func TestWordSelectedEmptyCardIDsSerializeAsArray(t *testing.T) {
	c, m := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	bob := join(c, "u2", "Bob")
	c.submitCard("u1", card("c1", bingo.Spanish, "uno"))

	c.requestStart("u1")
	m.drain(t)
	readFrames(t, alice)

	ws := ofType(readFrames(t, bob), TypeWordSelected)
	require.Len(t, ws, 1)
	assert.Contains(t, string(ws[0].raw), `"card_ids":[]`)
}

func TestCardSubmittedMidRoundIsNotRetroactive(t *testing.T) {
	c, m := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	c.submitCard("u1", card("a1", bingo.Spanish, "a", "b", "c", "d"))

	c.requestStart("u1") // draws "d"
	bob := join(c, "u2", "Bob")
	c.submitCard("u2", card("b1", bingo.Spanish, "d", "c", "e"))
	assert.Equal(t, 5, c.pools.Size(bingo.Spanish), "late words still enter the pool")

	// draw "c", "b", "a"; Alice completes on "a"
	for i := 0; i < 3; i++ {
		_, ok := m.fireNext()
		require.True(t, ok)
	}

	bf := readFrames(t, bob)
	var bobWords []string
	for _, f := range ofType(bf, TypeWordSelected) {
		bobWords = append(bobWords, decodeAs[WordSelectedMessage](t, f).Word)
	}
	assert.Equal(t, []string{"c", "b", "a"}, bobWords)
	assert.NotContains(t, bobWords, "e")

	sess, _ := c.registry.Get("u2")
	bc, _ := sess.Player.Card("b1")
	assert.Equal(t, []string{"c"}, bc.MarkedWords(), "\"d\" was drawn before the card existed")

	ends := ofType(bf, TypeRoundEnd)
	require.Len(t, ends, 1)
	re := decodeAs[RoundEndMessage](t, ends[0])
	require.Len(t, re.Winners, 1)
	assert.Equal(t, "Alice", re.Winners[0].Name)

	// finish this game, then the late card plays from the next game on
	m.drain(t)
	readFrames(t, alice)
	readFrames(t, bob)

	c.requestStart("u1") // spanish pool [a b c d e] draws e, d, c
	m.drain(t)
	af := readFrames(t, alice)
	first := decodeAs[RoundEndMessage](t, ofType(af, TypeRoundEnd)[0])
	require.Len(t, first.Winners, 1)
	assert.Equal(t, "Bob", first.Winners[0].Name)
	assert.Equal(t, []string{"d", "c", "e"}, first.Winners[0].Card.MarkedWords)
}

func TestWinnerLogCountsCardsAndGameEndDedupes(t *testing.T) {
	c, m := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	join(c, "u2", "Alice")
	c.submitCard("u1", card("c1", bingo.Spanish, "x"))
	c.submitCard("u1", card("c2", bingo.Spanish, "x"))
	c.submitCard("u2", card("c3", bingo.Spanish, "x"))
	c.submitCard("u1", card("c4", bingo.English, "y"))

	c.requestStart("u1")
	// spanish won on the first draw
	assert.Equal(t, []string{"Alice", "Alice", "Alice"}, c.state.winnerLog)

	m.drain(t)
	fs := readFrames(t, alice)
	ends := ofType(fs, TypeRoundEnd)
	require.Len(t, ends, 4)
	assert.Len(t, decodeAs[RoundEndMessage](t, ends[0]).Winners, 3)
	assert.Len(t, decodeAs[RoundEndMessage](t, ends[1]).Winners, 1)

	end := decodeAs[GameEndMessage](t, ofType(fs, TypeGameEnd)[0])
	assert.Equal(t, []string{"Alice"}, end.Winners)
}

func TestLastPlayerLeavingResetsGame(t *testing.T) {
	c, m := newTestCoordinator(t, lastSource{})
	join(c, "u1", "Alice")
	c.submitCard("u1", card("c1", bingo.Spanish, "uno", "dos", "tres"))

	c.requestStart("u1")
	require.True(t, c.state.started)
	require.NotEmpty(t, m.steps)
	pending := m.steps[len(m.steps)-1]
	epoch := c.state.epoch

	c.removePlayer("u1")

	assert.False(t, c.state.started)
	assert.Zero(t, c.state.roundIndex)
	assert.Empty(t, c.state.winnerLog)
	assert.Empty(t, c.state.roundOrder)
	assert.Equal(t, bingo.Language(""), c.state.currentLanguage)
	assert.Equal(t, epoch+1, c.state.epoch)
	assert.True(t, pending.stopped)

	// a continuation that fires anyway is dropped
	pending.fn()
	assert.False(t, c.state.started)
	_, ok := m.fireNext()
	assert.False(t, ok)
}

func TestBroadcastRemovesFailedRecipientsAfterPass(t *testing.T) {
	c, _ := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	bob := session.NewOutbox("u2", 1)
	c.registerPlayer("u2", "Bob", bob) // fills Bob's only slot
	carol := join(c, "u3", "Carol")    // Bob's push fails

	var counts []int
	for _, f := range readFrames(t, alice) {
		counts = append(counts, decodeAs[PlayerCountMessage](t, f).Count)
	}
	assert.Equal(t, []int{1, 2, 3, 2}, counts)

	counts = nil
	for _, f := range readFrames(t, carol) {
		counts = append(counts, decodeAs[PlayerCountMessage](t, f).Count)
	}
	assert.Equal(t, []int{3, 2}, counts)

	assert.True(t, bob.IsClosed())
	_, ok := c.registry.Get("u2")
	assert.False(t, ok)
}

func TestUnicastFailureRemovesOnlyThatPlayer(t *testing.T) {
	c, m := newTestCoordinator(t, lastSource{})
	alice := join(c, "u1", "Alice")
	bob := session.NewOutbox("u2", 5)
	c.registerPlayer("u2", "Bob", bob)
	c.submitCard("u1", card("c1", bingo.Spanish, "a", "b", "c", "d", "e", "f"))

	// Bob's buffer holds count, game_started, round_start and two words; the third word fails
	c.requestStart("u1")
	m.drain(t)

	assert.True(t, bob.IsClosed())
	_, ok := c.registry.Get("u2")
	assert.False(t, ok)

	fs := readFrames(t, alice)
	assert.Len(t, ofType(fs, TypeWordSelected), 6, "Alice keeps receiving every draw")
	assert.Len(t, ofType(fs, TypeGameEnd), 1)
}

func TestDisconnectIgnoresStaleOutbox(t *testing.T) {
	c, _ := newTestCoordinator(t, lastSource{})
	old := join(c, "u1", "Alice")
	c.submitCard("u1", card("c1", bingo.Dutch, "kat"))

	fresh := join(c, "u1", "Alice")
	assert.True(t, old.IsClosed(), "replaced connection is closed")
	sess, _ := c.registry.Get("u1")
	assert.Zero(t, sess.Player.CardCount(), "re-registration drops previous cards")

	c.disconnect("u1", old)
	_, ok := c.registry.Get("u1")
	assert.True(t, ok)

	c.disconnect("u1", fresh)
	_, ok = c.registry.Get("u1")
	assert.False(t, ok)
}

func TestRunLoopPlaysFullGame(t *testing.T) {
	c := New(Options{Source: draw.NewSeededSource(3)}, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- c.Run(ctx) }()

	out := session.NewOutbox("u1", 4096)
	require.NoError(t, c.RegisterPlayer(ctx, "u1", "Alice", out))
	require.NoError(t, c.SubmitCard(ctx, "u1", card("c1", bingo.Portuguese, "um", "dois")))
	require.NoError(t, c.SeedWords(ctx, map[bingo.Language][]string{bingo.English: {"one"}}))
	require.NoError(t, c.RequestStart(ctx, "u1"))

	var end GameEndMessage
	deadline := time.After(5 * time.Second)
wait:
	for {
		select {
		case data := <-out.Frames():
			var f frame
			require.NoError(t, json.Unmarshal(data, &f))
			if f.Type == TypeGameEnd {
				f.raw = data
				end = decodeAs[GameEndMessage](t, f)
				break wait
			}
		case <-deadline:
			t.Fatal("game did not end in time")
		}
	}
	assert.Equal(t, []string{"Alice"}, end.Winners)

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Started)
	assert.Equal(t, 1, snap.Players)
	assert.Equal(t, 2, snap.PoolSizes["portuguese"])
	assert.Equal(t, 1, snap.PoolSizes["english"])

	cancel()
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.ErrorIs(t, c.RequestStart(context.Background(), "u1"), ErrStopped)
}

func TestRunLoopSurvivesPanickingCommand(t *testing.T) {
	c := New(Options{}, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.NoError(t, c.do(ctx, func() { panic("boom") }))
	require.NoError(t, c.RegisterPlayer(ctx, "u1", "Alice", session.NewOutbox("u1", 8)))

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Players)
}

func TestSnapshotDuringRound(t *testing.T) {
	c, _ := newTestCoordinator(t, lastSource{})
	join(c, "u1", "Alice")
	c.submitCard("u1", card("c1", bingo.Spanish, "uno", "dos"))
	c.requestStart("u1")

	snap := c.snapshot()
	assert.True(t, snap.Started)
	assert.Equal(t, "spanish", snap.CurrentLanguage)
	assert.Equal(t, []string{"spanish", "english", "portuguese", "dutch"}, snap.RoundOrder)
	assert.Equal(t, 0, snap.RoundIndex)
}
