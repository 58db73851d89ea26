package feedback

import "fmt"

// Stage is where a transcription result sits in the correction dialog
type Stage int

const (
	// StageSubmitted - the recording was sent and no answer has arrived yet.
	StageSubmitted Stage = iota
	// StageResultShown - the transcription was appended to the transcript.
	StageResultShown
	// StageAwaitingConfidence - feedback options are offered on the result.
	StageAwaitingConfidence
	// StagePerfect - the user confirmed the transcription (terminal).
	StagePerfect
	// StageDisambiguationShown - two suggested phrasings are offered.
	StageDisambiguationShown
	// StageCorrectionInput - a free-text correction control is open.
	StageCorrectionInput
	// StageResolved - a suggestion was accepted or advice was shown (terminal).
	StageResolved
	// StageFailed - the backend reported an error or could not be reached (terminal).
	StageFailed
	// StageSkipped - the recognizer could not understand the audio, so no
	// feedback is collected (terminal).
	StageSkipped
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageSubmitted:
		return "submitted"
	case StageResultShown:
		return "result_shown"
	case StageAwaitingConfidence:
		return "awaiting_confidence"
	case StagePerfect:
		return "perfect"
	case StageDisambiguationShown:
		return "disambiguation_shown"
	case StageCorrectionInput:
		return "correction_input"
	case StageResolved:
		return "resolved"
	case StageFailed:
		return "failed"
	case StageSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// IsTerminal returns true if no further interaction is possible
func (s Stage) IsTerminal() bool {
	switch s {
	case StagePerfect, StageResolved, StageFailed, StageSkipped:
		return true
	default:
		return false
	}
}

// State is the user's verdict on a transcription. It only moves forward.
type State int

const (
	StateAwaiting State = iota
	StatePerfect
	StateAlmostCorrect
	StateAlmostWrong
	StateResolved
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting"
	case StatePerfect:
		return "perfect"
	case StateAlmostCorrect:
		return "almost_correct"
	case StateAlmostWrong:
		return "almost_wrong"
	case StateResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}
