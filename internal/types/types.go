// Package types holds the wire types shared by every service: the
// command envelope published onto a game's input topic and the step
// event published onto its output topic (spec §6), plus the status
// enums layered on top of them. Shape is grounded on the teacher's
// internal/types.CommandEnvelope / Event, generalized from the
// teacher's single room-scoped event to this system's richer step
// event (it carries a full post-state snapshot, not just a payload).
package types

import "time"

type Source string

const (
	SourceUser   Source = "user"
	SourceBot    Source = "bot"
	SourceTimer  Source = "timer"
	SourceSystem Source = "system"
)

type CommandType string

const (
	CommandMove        CommandType = "move"
	CommandShield      CommandType = "shield"
	CommandShoot       CommandType = "shoot"
	CommandSpeak       CommandType = "speak"
	CommandTimeout     CommandType = "timeout"
	CommandGameStarted CommandType = "game_started"
)

type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Opposite returns the direction facing the other way.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	case DirectionLeft:
		return DirectionRight
	case DirectionRight:
		return DirectionLeft
	default:
		return ""
	}
}

// Perpendiculars returns the two directions perpendicular to d, used by
// the shoot sweep (spec §4.A).
func (d Direction) Perpendiculars() [2]Direction {
	switch d {
	case DirectionUp, DirectionDown:
		return [2]Direction{DirectionLeft, DirectionRight}
	default:
		return [2]Direction{DirectionUp, DirectionDown}
	}
}

func (d Direction) Valid() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return true
	default:
		return false
	}
}

// CommandEnvelope is the payload published to
// <input_prefix>.<game_id>.v1 (spec §6).
type CommandEnvelope struct {
	CommandID   string      `json:"command_id"`
	Source      Source      `json:"source"`
	GameID      string      `json:"game_id"`
	PlayerID    string      `json:"player_id,omitempty"`
	CommandType CommandType `json:"command_type"`
	Direction   Direction   `json:"direction,omitempty"`
	SpeakText   string      `json:"speak_text,omitempty"`
	TurnNo      uint64      `json:"turn_no"`
	SentAt      time.Time   `json:"sent_at"`
}

type EventType string

const (
	EventGameStarted   EventType = "GAME_STARTED"
	EventStepApplied   EventType = "STEP_APPLIED"
	EventTimeoutApplied EventType = "TIMEOUT_APPLIED"
	EventGameFinished  EventType = "GAME_FINISHED"
)

type ResultStatus string

const (
	ResultApplied           ResultStatus = "APPLIED"
	ResultTimeoutApplied    ResultStatus = "TIMEOUT_APPLIED"
	ResultIgnoredTimeout    ResultStatus = "IGNORED_TIMEOUT"
	ResultInvalidCommand    ResultStatus = "INVALID_COMMAND"
	ResultInvalidTurn       ResultStatus = "INVALID_TURN"
	ResultDuplicateCommand  ResultStatus = "DUPLICATE_COMMAND"
)

type GameStatus string

const (
	GameCreated  GameStatus = "CREATED"
	GameRunning  GameStatus = "RUNNING"
	GameFinished GameStatus = "FINISHED"
)

type MapSource string

const (
	MapCustom  MapSource = "CUSTOM"
	MapDefault MapSource = "DEFAULT"
)

type PlayerName string

const (
	SeatA PlayerName = "A"
	SeatB PlayerName = "B"
	SeatC PlayerName = "C"
	SeatD PlayerName = "D"
)

// SeatOrder is the fixed tie-break order used by turn advance (spec §4.A).
var SeatOrder = []PlayerName{SeatA, SeatB, SeatC, SeatD}

type CellState struct {
	Rows  int     `json:"rows"`
	Cols  int     `json:"cols"`
	Cells [][]int `json:"cells"`
}

type PlayerState struct {
	PlayerName string `json:"player_name"`
	PlayerID   string `json:"player_id"`
	HP         int    `json:"hp"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
	Shield     string `json:"shield"`
	Alive      bool   `json:"alive"`
}

type StateAfter struct {
	Map     CellState     `json:"map"`
	Players []PlayerState `json:"players"`
}

// StepEvent is the canonical record published to
// <output_prefix>.<game_id>.v1 (spec §6).
type StepEvent struct {
	GameID          string           `json:"game_id"`
	StepSeq         uint64           `json:"step_seq"`
	TurnNo          uint64           `json:"turn_no"`
	RoundNo         uint64           `json:"round_no"`
	EventType       EventType        `json:"event_type"`
	ResultStatus    ResultStatus     `json:"result_status"`
	Command         *CommandEnvelope `json:"command,omitempty"`
	CurrentPlayerID string           `json:"current_player_id"`
	GameStatus      GameStatus       `json:"game_status"`
	StateAfter      StateAfter       `json:"state_after"`
	CreatedAt       time.Time        `json:"created_at"`
}
