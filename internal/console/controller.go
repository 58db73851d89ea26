package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/toodo84/ai-pronunciation-app/internal/capture"
	"github.com/toodo84/ai-pronunciation-app/internal/feedback"
	"github.com/toodo84/ai-pronunciation-app/internal/transcript"
)

// ErrQuit is returned by Handle when the user asks to leave
var ErrQuit = errors.New("quit")

// Messages shown outside the transcript
const (
	MessagePending   = "請先完成上一句的回饋，再錄下一句。"
	MessageBusy      = "上一段錄音還在處理中，請稍候。"
	MessageNoControl = "目前沒有可以選擇的項目。"
	MessageHelp      = "按 Enter 開始/結束錄音，輸入數字選擇選項，輸入文字送出更正，q 離開。"
)

// Recorder is the capture side of the client
type Recorder interface {
	Start() error
	Stop(ctx context.Context) (*capture.Recording, error)
	Recording() bool
}

// Dialog is the feedback side of the client
type Dialog interface {
	Submit(ctx context.Context, wav []byte) (transcript.TurnID, error)
	Choose(ctx context.Context, turnID transcript.TurnID, optionID string) error
	SubmitCorrection(ctx context.Context, turnID transcript.TurnID, text string) error
	Pending() (transcript.TurnID, bool)
	Submitting() bool
}

// Controller maps input lines to recorder and dialog actions. Dialog calls
// reach the backend, so they run in their own goroutines and Handle returns
// as soon as they are started.
type Controller struct {
	recorder Recorder
	dialog   Dialog
	session  *transcript.Session
	renderer *Renderer
	logger   *slog.Logger

	inflight sync.WaitGroup
}

// NewController creates a controller
func NewController(recorder Recorder, dialog Dialog, session *transcript.Session, renderer *Renderer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		recorder: recorder,
		dialog:   dialog,
		session:  session,
		renderer: renderer,
		logger:   logger.With(slog.String("component", "console")),
	}
}

// Handle processes one input line. An empty line toggles recording, a number
// picks an option of the newest open choice, and other text answers an open
// correction control.
func (c *Controller) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)

	switch {
	case line == "":
		return c.toggle(ctx)
	case line == "q" || line == "quit":
		return ErrQuit
	case line == "?" || line == "help":
		c.renderer.Message(MessageHelp)
		return nil
	}

	if n, err := strconv.Atoi(line); err == nil {
		return c.choose(ctx, n)
	}
	return c.correct(ctx, line)
}

// Wait blocks until every dialog call started by Handle has returned
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close stops a recording still in progress without submitting it and waits
// for running dialog calls until ctx is done.
func (c *Controller) Close(ctx context.Context) {
	if c.recorder.Recording() {
		if _, err := c.recorder.Stop(ctx); err != nil {
			c.logger.Warn("Failed to stop recording", slog.String("error", err.Error()))
		}
	}

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("Backend requests still running at shutdown")
	}
}

func (c *Controller) toggle(ctx context.Context) error {
	if !c.recorder.Recording() {
		if c.dialog.Submitting() {
			c.renderer.Message(MessageBusy)
			return nil
		}
		if _, pending := c.dialog.Pending(); pending {
			c.renderer.Message(MessagePending)
			return nil
		}
		if err := c.recorder.Start(); err != nil {
			// The capture already reported the status
			c.logger.Warn("Failed to start recording", slog.String("error", err.Error()))
		}
		return nil
	}

	rec, err := c.recorder.Stop(ctx)
	if err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	if rec == nil {
		return nil
	}

	c.dispatch("submit", func() error {
		_, err := c.dialog.Submit(ctx, rec.WAV)
		return err
	})
	return nil
}

func (c *Controller) choose(ctx context.Context, n int) error {
	turn, set, ok := c.openChoice()
	if !ok {
		c.renderer.Message(MessageNoControl)
		return nil
	}
	if n < 1 || n > len(set.Options) {
		c.renderer.Message(fmt.Sprintf("請輸入 1 到 %d。", len(set.Options)))
		return nil
	}

	optionID := set.Options[n-1].ID
	c.dispatch("choose", func() error {
		return c.dialog.Choose(ctx, turn.ID, optionID)
	})
	return nil
}

func (c *Controller) correct(ctx context.Context, text string) error {
	turn, ok := c.openCorrection()
	if !ok {
		c.renderer.Message(MessageHelp)
		return nil
	}
	c.dispatch("correct", func() error {
		return c.dialog.SubmitCorrection(ctx, turn.ID, text)
	})
	return nil
}

// dispatch runs a dialog call in the background. Refusals become messages,
// anything else is logged.
func (c *Controller) dispatch(action string, call func() error) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		err := call()
		switch {
		case err == nil:
		case errors.Is(err, feedback.ErrResultPending):
			c.renderer.Message(MessagePending)
		case errors.Is(err, feedback.ErrInteractionClosed):
			c.renderer.Message(MessageNoControl)
		default:
			c.logger.Error("Dialog action failed",
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// openChoice finds the newest enabled option set that offers choices
func (c *Controller) openChoice() (transcript.Turn, transcript.OptionSet, bool) {
	turns := c.session.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		for _, set := range turns[i].Options {
			if !set.Disabled && set.Kind != transcript.OptionsCorrection && len(set.Options) > 0 {
				return turns[i], set, true
			}
		}
	}
	return transcript.Turn{}, transcript.OptionSet{}, false
}

// openCorrection finds the newest enabled correction control
func (c *Controller) openCorrection() (transcript.Turn, bool) {
	turns := c.session.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if set, ok := turns[i].OptionSet(transcript.OptionsCorrection); ok && !set.Disabled {
			return turns[i], true
		}
	}
	return transcript.Turn{}, false
}
