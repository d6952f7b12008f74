// Package feed streams row changes of a game to watchers through Redis pub/sub.
// Delivery is best effort, watchers resync from the API when they may have missed changes.
package feed

import (
	"encoding/json"
	"fmt"
)

type Table string

const (
	TableGames        Table = "games"
	TableParticipants Table = "participants"
	TableAnswers      Table = "answers"
	TableLeaderboard  Table = "leaderboard"
)

type Type string

const (
	TypeInsert Type = "INSERT"
	TypeUpdate Type = "UPDATE"
)

// Change is the new state of a row of a game.
type Change struct {
	Table  Table           `json:"table"`
	Type   Type            `json:"type"`
	GameID string          `json:"game_id"`
	Row    json.RawMessage `json:"row"`
}

func NewChange(table Table, typ Type, gameID string, row any) (Change, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return Change{}, fmt.Errorf("feed: marshal %s row: %w", table, err)
	}

	return Change{
		Table:  table,
		Type:   typ,
		GameID: gameID,
		Row:    b,
	}, nil
}

// Decode unmarshals the row into v, usually a pointer to the domain type of the table.
func (c Change) Decode(v any) error {
	if err := json.Unmarshal(c.Row, v); err != nil {
		return fmt.Errorf("feed: decode %s row: %w", c.Table, err)
	}

	return nil
}

// Filter selects changes. Empty fields match anything, Field and Value compare a top
// level field of the row, e.g. question_id=<id>.
type Filter struct {
	Table Table  `json:"table,omitempty"`
	Type  Type   `json:"type,omitempty"`
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
}

func (f Filter) Match(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}

	if f.Type != "" && f.Type != c.Type {
		return false
	}

	if f.Field == "" {
		return true
	}

	var row map[string]any
	if err := json.Unmarshal(c.Row, &row); err != nil {
		return false
	}

	v, ok := row[f.Field]
	if !ok {
		return false
	}

	return fmt.Sprint(v) == f.Value
}

// MatchAny reports whether c matches one of the filters. No filter matches everything.
func MatchAny(filters []Filter, c Change) bool {
	if len(filters) == 0 {
		return true
	}

	for _, f := range filters {
		if f.Match(c) {
			return true
		}
	}

	return false
}
