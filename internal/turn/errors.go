package turn

import "errors"

// ErrEmptyReply is reported when the dialogue engine answers with nothing.
var ErrEmptyReply = errors.New("turn: dialogue engine returned an empty reply")

// RecognitionError wraps a recognizer failure. The round is abandoned
// without touching the history.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string { return "turn: recognition failed: " + e.Err.Error() }
func (e *RecognitionError) Unwrap() error { return e.Err }

// DialogueError wraps a dialogue engine failure or malformed reply. The user
// hears the apology; the question stays in the history without an answer.
type DialogueError struct {
	Err error
}

func (e *DialogueError) Error() string { return "turn: dialogue failed: " + e.Err.Error() }
func (e *DialogueError) Unwrap() error { return e.Err }

// SynthesisError wraps a synthesis or playback failure. Text is the reply
// that could not be spoken; it is shown on the console instead.
type SynthesisError struct {
	Text string
	Err  error
}

func (e *SynthesisError) Error() string { return "turn: synthesis failed: " + e.Err.Error() }
func (e *SynthesisError) Unwrap() error { return e.Err }
