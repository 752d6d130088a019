// Package ws is the WebSocket transport for the bingo server. It accepts
// player connections, decodes inbound JSON frames and relays outbound frames
// queued by the coordinator.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cory-johannsen/wordbingo/internal/game/bingo"
)

// ErrMalformed is returned by Decode for frames that are not valid messages.
var ErrMalformed = errors.New("malformed message")

// ErrUnknownType is returned by Decode for well-formed frames of an unknown type.
var ErrUnknownType = errors.New("unknown message type")

// Kind names an inbound message type.
type Kind string

const (
	KindRegister Kind = "register"
	KindCard     Kind = "bingo_card"
	KindPlay     Kind = "play"
)

// Inbound is a decoded client message. User is set for KindRegister and Card
// for KindCard.
type Inbound struct {
	Kind Kind
	User string
	Card bingo.CardData
}

type envelope struct {
	Type string          `json:"type"`
	User *string         `json:"user"`
	Card json.RawMessage `json:"card"`
}

// Decode parses one text frame.
//
// Postcondition: Returns a message of a known Kind, or an error wrapping
// ErrMalformed or ErrUnknownType. Never panics.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch Kind(env.Type) {
	case KindRegister:
		name := bingo.DefaultPlayerName
		if env.User != nil {
			name = *env.User
		}
		return Inbound{Kind: KindRegister, User: name}, nil
	case KindCard:
		if len(env.Card) == 0 || string(env.Card) == "null" {
			return Inbound{}, fmt.Errorf("%w: bingo_card without card", ErrMalformed)
		}
		var card bingo.CardData
		if err := json.Unmarshal(env.Card, &card); err != nil {
			return Inbound{}, fmt.Errorf("%w: card: %v", ErrMalformed, err)
		}
		return Inbound{Kind: KindCard, Card: card}, nil
	case KindPlay:
		return Inbound{Kind: KindPlay}, nil
	case "":
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
