package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/toodo84/ai-pronunciation-app/internal/metrics"
	"github.com/toodo84/ai-pronunciation-app/internal/transcript"
	"github.com/toodo84/ai-pronunciation-app/internal/transport"
)

// Texts shown in the transcript and status line
const (
	AudioPlaceholder      = "🎤 (語音訊息)"
	FailureMarker         = transport.NoSpeechText
	StatusConnectionError = "連線錯誤"
	ConnectionErrorText   = "連線錯誤，請稍後再試。"
	PerfectAck            = "太好了！感謝您的回饋！"
	SuggestionPrompt      = "你是不是想說："
	CorrectionPlaceholder = "請輸入正確的文字"

	errorTextFormat    = "錯誤: %s"
	confirmationFormat = "好的，你想說的是：「%s」"
)

// Option IDs
const (
	OptionPerfect     = "perfect"
	OptionAlmost      = "almost"
	OptionWrong       = "wrong"
	OptionSuggestion1 = "suggestion-1"
	OptionSuggestion2 = "suggestion-2"
	OptionNone        = "none"
)

var (
	// ErrResultPending is returned by Submit while another result is unresolved
	ErrResultPending = errors.New("previous result is still unresolved")
	// ErrInteractionClosed is returned when choosing on a disabled control
	ErrInteractionClosed = errors.New("interaction is closed")
	// ErrUnknownOption is returned for an option ID the control does not offer
	ErrUnknownOption = errors.New("unknown option")
	// ErrEmptyRecording is returned by Submit for a recording without audio
	ErrEmptyRecording = errors.New("empty recording")
)

// Transcriber turns a WAV recording into text
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (transport.Transcription, error)
}

// Suggester returns two alternative phrasings of a transcription
type Suggester interface {
	Suggest(ctx context.Context, text string) ([]string, error)
}

// Advisor explains how the recognized text differs from the intended text
type Advisor interface {
	Advise(ctx context.Context, wrongText, correctText string) (string, error)
}

// Reporter receives confidence choices
type Reporter interface {
	ReportFeedback(ctx context.Context, feedback, text string) error
}

// Config wires a Flow to its collaborators. Reporter, Logger, Metrics and
// OnStatus are optional.
type Config struct {
	Session     *transcript.Session
	Transcriber Transcriber
	Suggester   Suggester
	Advisor     Advisor
	Reporter    Reporter
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	OnStatus    func(status string)
}

// Result is a snapshot of one transcription result
type Result struct {
	ID          transcript.TurnID
	Text        string
	Stage       Stage
	Feedback    State
	Suggestions []string
	// PromptTurn carries the suggestion options, if any
	PromptTurn transcript.TurnID
	// ControlTurn carries the correction control, if any
	ControlTurn transcript.TurnID
}

type result struct {
	Result
	busy bool
}

// Flow sequences the correction dialog for each transcription result. Only
// one result may be unresolved at a time.
//
// Session subscribers are invoked while the Flow holds its lock and must not
// call back into the Flow.
type Flow struct {
	session     *transcript.Session
	transcriber Transcriber
	suggester   Suggester
	advisor     Advisor
	reporter    Reporter
	logger      *slog.Logger
	metrics     *metrics.Metrics
	onStatus    func(string)

	results    map[transcript.TurnID]*result
	owners     map[transcript.TurnID]*result
	pending    *result
	submitting bool

	mu sync.Mutex
}

// New creates a Flow
func New(cfg Config) (*Flow, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if cfg.Transcriber == nil || cfg.Suggester == nil || cfg.Advisor == nil {
		return nil, fmt.Errorf("transcriber, suggester and advisor are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Flow{
		session:     cfg.Session,
		transcriber: cfg.Transcriber,
		suggester:   cfg.Suggester,
		advisor:     cfg.Advisor,
		reporter:    cfg.Reporter,
		logger:      logger.With(slog.String("component", "feedback")),
		metrics:     cfg.Metrics,
		onStatus:    cfg.OnStatus,
		results:     make(map[transcript.TurnID]*result),
		owners:      make(map[transcript.TurnID]*result),
	}, nil
}

// Submit sends a recording for transcription and shows the result. Backend
// and connection failures are reported in the transcript and leave the
// result in StageFailed; the returned error is reserved for requests the
// flow refuses. An empty transcription adds no result and returns an empty ID.
func (f *Flow) Submit(ctx context.Context, wav []byte) (transcript.TurnID, error) {
	if len(wav) == 0 {
		return "", ErrEmptyRecording
	}

	f.mu.Lock()
	if f.submitting || f.pending != nil {
		f.mu.Unlock()
		return "", ErrResultPending
	}
	f.submitting = true
	f.session.Append(transcript.Sent, transcript.KindAudio, AudioPlaceholder)
	f.mu.Unlock()

	tr, err := f.transcriber.Transcribe(ctx, wav)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false

	if err != nil {
		id := f.session.Append(transcript.Received, transcript.KindError, ConnectionErrorText)
		r := f.track(id, "")
		f.fail(r, transport.ExchangeTranscribe, err)
		return id, nil
	}

	f.status("")

	if tr.Error != "" {
		id := f.session.Append(transcript.Received, transcript.KindError, fmt.Sprintf(errorTextFormat, tr.Error))
		r := f.track(id, "")
		f.logger.Info("Transcription failed", slog.String("error", tr.Error))
		f.finish(r, StageFailed)
		return id, nil
	}

	if tr.Text == "" {
		f.logger.Info("Transcription came back empty")
		return "", nil
	}

	id := f.session.Append(transcript.Received, transcript.KindText, tr.Text)
	r := f.track(id, tr.Text)
	r.Stage = StageResultShown

	if tr.Text == FailureMarker {
		f.finish(r, StageSkipped)
		return id, nil
	}

	if err := f.session.Decorate(id, feedbackOptions()); err != nil {
		f.logger.Error("Failed to attach feedback options", slog.String("error", err.Error()))
		f.finish(r, StageFailed)
		return id, err
	}

	r.Stage = StageAwaitingConfidence
	f.pending = r
	f.logger.Debug("Awaiting confidence feedback", slog.String("turn_id", string(id)))

	return id, nil
}

// Choose applies the option with optionID on the control attached to turnID
func (f *Flow) Choose(ctx context.Context, turnID transcript.TurnID, optionID string) error {
	f.mu.Lock()
	r, err := f.interactive(turnID)
	if err != nil {
		f.mu.Unlock()
		return err
	}

	switch {
	case turnID == r.ID && r.Stage == StageAwaitingConfidence:
		return f.chooseConfidence(ctx, r, optionID)
	case turnID == r.PromptTurn && r.Stage == StageDisambiguationShown:
		defer f.mu.Unlock()
		return f.chooseSuggestion(r, optionID)
	default:
		f.mu.Unlock()
		return ErrInteractionClosed
	}
}

// chooseConfidence is called with mu held and releases it
func (f *Flow) chooseConfidence(ctx context.Context, r *result, optionID string) error {
	switch optionID {
	case OptionPerfect:
		f.disable(r.ID, transcript.OptionsFeedback)
		r.Feedback = StatePerfect
		f.session.Append(transcript.Received, transcript.KindText, PerfectAck)
		f.finish(r, StagePerfect)
		f.mu.Unlock()

		f.metrics.RecordFeedbackChoice(optionID)
		f.report(ctx, optionID, r.Text)
		return nil

	case OptionWrong:
		f.disable(r.ID, transcript.OptionsFeedback)
		r.Feedback = StateAlmostWrong
		f.openCorrection(r, r.ID)
		f.mu.Unlock()

		f.metrics.RecordFeedbackChoice(optionID)
		f.report(ctx, optionID, r.Text)
		return nil

	case OptionAlmost:
		f.disable(r.ID, transcript.OptionsFeedback)
		r.Feedback = StateAlmostCorrect
		r.busy = true
		f.mu.Unlock()

		f.metrics.RecordFeedbackChoice(optionID)

		suggestions, err := f.suggester.Suggest(ctx, r.Text)
		if err == nil && len(suggestions) != 2 {
			err = fmt.Errorf("%w, got %d", transport.ErrUnexpectedSuggestions, len(suggestions))
		}

		f.mu.Lock()
		r.busy = false
		if err != nil {
			f.session.Append(transcript.Received, transcript.KindError, ConnectionErrorText)
			f.fail(r, transport.ExchangeSuggest, err)
		} else {
			f.showSuggestions(r, suggestions)
		}
		f.mu.Unlock()

		// Sent once the choices are shown
		f.report(ctx, optionID, r.Text)
		return nil

	default:
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOption, optionID)
	}
}

// chooseSuggestion must be called with mu held
func (f *Flow) chooseSuggestion(r *result, optionID string) error {
	var chosen string
	switch optionID {
	case OptionSuggestion1:
		chosen = r.Suggestions[0]
	case OptionSuggestion2:
		chosen = r.Suggestions[1]
	case OptionNone:
		f.disable(r.PromptTurn, transcript.OptionsSuggestions)
		f.metrics.RecordFeedbackChoice(optionID)
		f.openCorrection(r, r.PromptTurn)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOption, optionID)
	}

	f.disable(r.PromptTurn, transcript.OptionsSuggestions)
	f.metrics.RecordFeedbackChoice(optionID)
	f.session.Append(transcript.Received, transcript.KindText, fmt.Sprintf(confirmationFormat, chosen))
	r.Feedback = StateResolved
	f.finish(r, StageResolved)
	return nil
}

// SubmitCorrection sends the text the user meant for pronunciation advice.
// Blank text is ignored and the control stays open.
func (f *Flow) SubmitCorrection(ctx context.Context, turnID transcript.TurnID, text string) error {
	f.mu.Lock()
	r, err := f.interactive(turnID)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	if r.Stage != StageCorrectionInput || turnID != r.ControlTurn {
		f.mu.Unlock()
		return ErrInteractionClosed
	}

	correct := strings.TrimSpace(text)
	if correct == "" {
		f.mu.Unlock()
		return nil
	}

	f.session.Append(transcript.Sent, transcript.KindText, correct)
	if err := f.session.Remove(r.ControlTurn, transcript.OptionsCorrection); err != nil {
		f.logger.Warn("Failed to remove correction control", slog.String("error", err.Error()))
	}
	r.busy = true
	f.mu.Unlock()

	advice, err := f.advisor.Advise(ctx, r.Text, correct)

	f.mu.Lock()
	defer f.mu.Unlock()
	r.busy = false

	if err != nil {
		f.session.Append(transcript.Received, transcript.KindError, ConnectionErrorText)
		f.fail(r, transport.ExchangeAdvise, err)
		return nil
	}

	f.session.Append(transcript.Received, transcript.KindText, advice)
	r.Feedback = StateResolved
	f.finish(r, StageResolved)
	return nil
}

// Result returns a snapshot of the result shown in turn id
func (f *Flow) Result(id transcript.TurnID) (Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.results[id]
	if !ok {
		return Result{}, false
	}
	snap := r.Result
	snap.Suggestions = append([]string(nil), r.Suggestions...)
	return snap, true
}

// Pending returns the unresolved result, if any
func (f *Flow) Pending() (transcript.TurnID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending == nil {
		return "", false
	}
	return f.pending.ID, true
}

// Submitting reports whether a transcription request is in flight. Callers
// use it to hold back a new recording until the current one is answered.
func (f *Flow) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// track registers a new result shown in turn id. Must be called with mu held.
func (f *Flow) track(id transcript.TurnID, text string) *result {
	r := &result{Result: Result{ID: id, Text: text, Stage: StageSubmitted, Feedback: StateAwaiting}}
	f.results[id] = r
	f.owners[id] = r
	return r
}

// interactive returns the result owning turnID if it still accepts input.
// Must be called with mu held.
func (f *Flow) interactive(turnID transcript.TurnID) (*result, error) {
	r, ok := f.owners[turnID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transcript.ErrUnknownTurn, turnID)
	}
	if r.Stage.IsTerminal() || r.busy {
		return nil, ErrInteractionClosed
	}
	return r, nil
}

// showSuggestions must be called with mu held
func (f *Flow) showSuggestions(r *result, suggestions []string) {
	prompt := f.session.Append(transcript.Received, transcript.KindText, SuggestionPrompt)
	r.PromptTurn = prompt
	r.Suggestions = suggestions
	f.owners[prompt] = r

	set := transcript.OptionSet{
		Kind: transcript.OptionsSuggestions,
		Options: []transcript.Option{
			{ID: OptionSuggestion1, Label: suggestions[0]},
			{ID: OptionSuggestion2, Label: suggestions[1]},
			{ID: OptionNone, Label: "都不是"},
		},
	}
	if err := f.session.Decorate(prompt, set); err != nil {
		f.logger.Error("Failed to attach suggestions", slog.String("error", err.Error()))
		f.finish(r, StageFailed)
		return
	}
	r.Stage = StageDisambiguationShown
}

// openCorrection attaches the free-text control to turn on. Must be called
// with mu held.
func (f *Flow) openCorrection(r *result, on transcript.TurnID) {
	set := transcript.OptionSet{
		Kind:        transcript.OptionsCorrection,
		Placeholder: CorrectionPlaceholder,
	}
	if err := f.session.Decorate(on, set); err != nil {
		f.logger.Error("Failed to attach correction control", slog.String("error", err.Error()))
		f.finish(r, StageFailed)
		return
	}
	r.ControlTurn = on
	r.Stage = StageCorrectionInput
}

// fail reports a connection failure and ends the result. Must be called with
// mu held.
func (f *Flow) fail(r *result, exchange string, err error) {
	f.logger.Warn("Backend exchange failed",
		slog.String("exchange", exchange),
		slog.String("turn_id", string(r.ID)),
		slog.String("error", err.Error()),
	)
	f.status(StatusConnectionError)
	f.finish(r, StageFailed)
}

// finish moves r to a terminal stage and disables every control it owns.
// Must be called with mu held.
func (f *Flow) finish(r *result, stage Stage) {
	r.Stage = stage
	for _, id := range []transcript.TurnID{r.ID, r.PromptTurn, r.ControlTurn} {
		if id == "" {
			continue
		}
		if err := f.session.Resolve(id); err != nil {
			f.logger.Warn("Failed to resolve turn", slog.String("turn_id", string(id)), slog.String("error", err.Error()))
		}
	}
	if f.pending == r {
		f.pending = nil
	}

	f.metrics.RecordFeedbackOutcome(stage.String())
	f.logger.Info("Result finished",
		slog.String("turn_id", string(r.ID)),
		slog.String("stage", stage.String()),
		slog.String("feedback", r.Feedback.String()),
	)
}

func (f *Flow) disable(id transcript.TurnID, kind transcript.OptionKind) {
	if err := f.session.Disable(id, kind); err != nil {
		f.logger.Warn("Failed to disable options", slog.String("turn_id", string(id)), slog.String("error", err.Error()))
	}
}

// report forwards a confidence choice; failures are only logged
func (f *Flow) report(ctx context.Context, choice, text string) {
	if f.reporter == nil {
		return
	}
	if err := f.reporter.ReportFeedback(ctx, choice, text); err != nil {
		f.logger.Warn("Failed to report feedback", slog.String("choice", choice), slog.String("error", err.Error()))
	}
}

func (f *Flow) status(text string) {
	if f.onStatus != nil {
		f.onStatus(text)
	}
}

func feedbackOptions() transcript.OptionSet {
	return transcript.OptionSet{
		Kind: transcript.OptionsFeedback,
		Options: []transcript.Option{
			{ID: OptionPerfect, Label: "完全正確"},
			{ID: OptionAlmost, Label: "差不多"},
			{ID: OptionWrong, Label: "不太對"},
		},
	}
}
