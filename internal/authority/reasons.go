package authority

// Reasons returned by ApplyCommand/StartGame/FinishGame that are not
// rules-engine rejections (spec §4.B, §4.C).
const (
	ReasonAlreadyRunning     = "ALREADY_RUNNING"
	ReasonAlreadyFinished    = "ALREADY_FINISHED"
	ReasonGameFinished       = "GAME_FINISHED"
	ReasonGameNotRunning     = "GAME_NOT_RUNNING"
	ReasonInvalidTurnPlayer  = "INVALID_TURN_PLAYER"
	ReasonStaleTurnNo        = "STALE_TURN_NO"
	ReasonPlayerDead         = "PLAYER_DEAD"
	ReasonNotLastPlayerLeft  = "NOT_LAST_PLAYER_LEFT"
	ReasonUnknownCommandType = "UNKNOWN_COMMAND_TYPE"
)

// TerminalReasons are rejections produced by ApplyCommand whose cause is
// the request's relationship to game/turn state rather than the
// content of the command itself. The pipeline (spec §4.C step 5) only
// rewrites-to-speak when the reason is NOT one of these.
var TerminalReasons = map[string]bool{
	ReasonStaleTurnNo:       true,
	ReasonInvalidTurnPlayer: true,
	ReasonPlayerDead:        true,
	ReasonGameNotRunning:    true,
}
