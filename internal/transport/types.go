package transport

import (
	"errors"
	"fmt"
)

// Endpoint paths shared by the client and the backend server
const (
	PathTranscribe  = "/transcribe"
	PathSuggestions = "/get_similar_suggestions"
	PathAdvice      = "/analyze_correction"
	PathFeedback    = "/submit_feedback"
)

// Multipart names used for the recording upload
const (
	AudioField    = "audio_data"
	AudioFilename = "recording.wav"
)

// Exchange names used in errors, logs and metrics
const (
	ExchangeTranscribe = "transcribe"
	ExchangeSuggest    = "suggest"
	ExchangeAdvise     = "advise"
	ExchangeFeedback   = "feedback"
)

// NoSpeechText is the transcription text sent when a recording holds nothing
// recognizable
const NoSpeechText = "抱歉，我不確定你說了什麼。"

// ErrUnexpectedSuggestions is returned when the backend does not answer with
// exactly two alternatives
var ErrUnexpectedSuggestions = errors.New("expected exactly two suggestions")

// Transcription is the answer to a recording upload. At most one of Text and
// Error is set; Error carries a recognizer failure reported by the backend.
type Transcription struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// SuggestionsRequest asks for alternative phrasings of a transcription
type SuggestionsRequest struct {
	Text string `json:"text"`
}

// SuggestionsResponse carries the alternative phrasings
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// AdviceRequest pairs the recognized text with the text the user meant
type AdviceRequest struct {
	WrongText   string `json:"wrong_text"`
	CorrectText string `json:"correct_text"`
}

// AdviceResponse carries pronunciation advice
type AdviceResponse struct {
	Advice string `json:"advice"`
}

// FeedbackRequest reports the user's confidence choice for a transcription
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
	Text     string `json:"text"`
}

// FeedbackResponse acknowledges a feedback report
type FeedbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed backend call
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error is a transport failure: the exchange could not be completed
type Error struct {
	Exchange   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s exchange failed with HTTP %d: %v", e.Exchange, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s exchange failed: %v", e.Exchange, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
