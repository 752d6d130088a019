package gameserver

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/wordbingo/internal/game/bingo"
)

// Outbound message type names.
const (
	TypePlayerCount  = "player_count"
	TypeGameStarted  = "game_started"
	TypeRoundStart   = "round_start"
	TypeWordSelected = "word_selected"
	TypeRoundEnd     = "round_end"
	TypeGameEnd      = "game_end"
)

// PlayerCountMessage announces the number of registered players.
type PlayerCountMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// GameStartedMessage announces the start of a game.
type GameStartedMessage struct {
	Type string `json:"type"`
}

// RoundStartMessage announces the language of the round about to be played.
type RoundStartMessage struct {
	Type        string `json:"type"`
	Language    string `json:"language"`
	RoundNumber int    `json:"round_number"`
	TotalRounds int    `json:"total_rounds"`
}

// WordSelectedMessage tells one player which of its cards a drawn word marked.
type WordSelectedMessage struct {
	Type     string   `json:"type"`
	Word     string   `json:"word"`
	Language string   `json:"language"`
	CardIDs  []string `json:"card_ids"`
}

// WinnerCard is the winning card as shown to every player.
type WinnerCard struct {
	ID          string   `json:"id"`
	Words       []string `json:"words"`
	Language    string   `json:"language"`
	MarkedWords []string `json:"markedWords"`
}

// Winner pairs a player name with one completed card.
type Winner struct {
	Name string     `json:"name"`
	Card WinnerCard `json:"card"`
}

// RoundEndMessage closes a round. Winners is empty when the pool ran out.
type RoundEndMessage struct {
	Type     string   `json:"type"`
	Language string   `json:"language"`
	Winners  []Winner `json:"winners"`
}

// GameEndMessage closes a game with the distinct winner names in first-win order.
type GameEndMessage struct {
	Type    string   `json:"type"`
	Winners []string `json:"winners"`
}

func playerCountMessage(n int) PlayerCountMessage {
	return PlayerCountMessage{Type: TypePlayerCount, Count: n}
}

func gameStartedMessage() GameStartedMessage {
	return GameStartedMessage{Type: TypeGameStarted}
}

func roundStartMessage(lang bingo.Language, index, total int) RoundStartMessage {
	return RoundStartMessage{
		Type:        TypeRoundStart,
		Language:    lang.String(),
		RoundNumber: index + 1,
		TotalRounds: total,
	}
}

func wordSelectedMessage(word string, lang bingo.Language, cardIDs []string) WordSelectedMessage {
	if cardIDs == nil {
		cardIDs = []string{}
	}
	return WordSelectedMessage{
		Type:     TypeWordSelected,
		Word:     word,
		Language: lang.String(),
		CardIDs:  cardIDs,
	}
}

func roundEndMessage(lang bingo.Language, winners []Winner) RoundEndMessage {
	if winners == nil {
		winners = []Winner{}
	}
	return RoundEndMessage{Type: TypeRoundEnd, Language: lang.String(), Winners: winners}
}

func gameEndMessage(names []string) GameEndMessage {
	if names == nil {
		names = []string{}
	}
	return GameEndMessage{Type: TypeGameEnd, Winners: names}
}

func newWinner(name string, card *bingo.Card) Winner {
	return Winner{
		Name: name,
		Card: WinnerCard{
			ID:          card.ID(),
			Words:       card.Words(),
			Language:    card.Language().String(),
			MarkedWords: card.MarkedWords(),
		},
	}
}

// encode serializes an outbound message into a text frame.
func encode(msg any) ([]byte, error) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", msg, err)
	}
	return frame, nil
}

// uniqueNames drops repeated names, keeping the first occurrence of each.
func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
