package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hammamikhairi/storyplated/internal/conversation"
	"github.com/hammamikhairi/storyplated/internal/display"
	"github.com/hammamikhairi/storyplated/internal/domain"
	"github.com/hammamikhairi/storyplated/internal/engine"
	"github.com/hammamikhairi/storyplated/internal/logger"
	"github.com/hammamikhairi/storyplated/internal/wakeword"
)

type cliApp struct {
	engine   *engine.Engine
	catalog  *engine.Catalog
	parser   domain.IntentParser
	notifier *conversation.CLINotifier
	detector *wakeword.Detector // nil when the wake word is off
	ui       *display.UI
	log      *logger.Logger
	voiceOn  bool

	// Guarded by mu: the wake word callback reads the session from its
	// own goroutine.
	mu       sync.Mutex
	session  *engine.Controller
	selected *domain.Recipe
	asking   sync.WaitGroup
}

func (a *cliApp) current() *engine.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *cliApp) run(ctx context.Context) error {
	a.ui.PrintChat(conversation.LineWelcome())
	a.ui.Println("")
	a.showRecipes(ctx)

	uiCh := a.ui.InputChan()
	for {
		var input string
		select {
		case <-ctx.Done():
			return nil
		case in, ok := <-uiCh:
			if !ok {
				return nil
			}
			input = strings.TrimSpace(in)
		}
		if input == "" {
			continue
		}

		var state *domain.SessionState
		if ctrl := a.current(); ctrl != nil {
			s := ctrl.Snapshot()
			state = &s
		}

		intent, err := a.parser.Parse(ctx, input, state)
		if err != nil {
			a.log.Error("parsing input: %v", err)
			continue
		}
		a.log.Debug("intent: %s (payload=%q)", intent.Type, intent.Payload)

		if quit := a.handleIntent(ctx, intent); quit {
			return nil
		}
	}
}

// handleIntent dispatches one intent. It reports whether the app should exit.
func (a *cliApp) handleIntent(ctx context.Context, intent *domain.Intent) bool {
	switch intent.Type {
	case domain.IntentHelp:
		a.showHelp()
	case domain.IntentListRecipes:
		a.showRecipes(ctx)
	case domain.IntentSelectRecipe:
		a.selectRecipe(intent.Payload)
	case domain.IntentStartCooking:
		a.startCooking(ctx)
	case domain.IntentNext:
		a.next()
	case domain.IntentPrevious:
		a.previous()
	case domain.IntentRepeat:
		a.repeat()
	case domain.IntentPause:
		a.pause()
	case domain.IntentResume:
		a.resume()
	case domain.IntentListen:
		a.listen(ctx)
	case domain.IntentStop:
		a.leave(ctx)
	case domain.IntentAskQuestion:
		a.ask(ctx, intent.Payload)
	case domain.IntentAcknowledge:
		a.acknowledge()
	case domain.IntentStatus:
		a.status()
	case domain.IntentQuit:
		a.quit(ctx)
		return true
	default:
		a.ui.PrintHint(conversation.LineUnknown(intent.Payload))
	}
	return false
}

// ── Recipes ──────────────────────────────────────────────────────

func (a *cliApp) showRecipes(ctx context.Context) {
	a.ui.PrintHint(conversation.LineLoading())
	if err := a.catalog.Load(ctx); err != nil {
		a.ui.PrintUrgent(conversation.LineLoadFailed(err))
	}

	st := a.catalog.State()
	if len(st.Recipes) == 0 {
		a.ui.PrintHint(conversation.LineNoRecipes())
		return
	}

	a.ui.PrintStep("Recipes:")
	for i, r := range st.Recipes {
		line := conversation.LineRecipeEntry(i+1, r)
		if r.Unlocked {
			a.ui.PrintInstruction(line)
		} else {
			a.ui.PrintLocked(line)
		}
		if r.Description != "" {
			a.ui.PrintHint("    " + r.Description)
		}
	}
	a.ui.Println("")
	a.ui.PrintChat(conversation.LinePickPrompt())
}

func (a *cliApp) selectRecipe(payload string) {
	n, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		a.ui.PrintHint(conversation.LineInvalidSelection(payload))
		return
	}
	r, err := a.catalog.Pick(n)
	if err != nil {
		a.ui.PrintHint(conversation.LineInvalidSelection(payload))
		return
	}

	a.mu.Lock()
	a.selected = &r
	a.mu.Unlock()

	a.showRecipeDetail(r)
}

func (a *cliApp) showRecipeDetail(r domain.Recipe) {
	a.ui.PrintStep(fmt.Sprintf("=== %s ===", r.Title))
	a.ui.PrintInstruction(r.Description)
	a.ui.PrintHint(conversation.LineNarratedBy(r.Character))
	a.ui.PrintHint(fmt.Sprintf("Difficulty: %s  |  About %s  |  %d steps",
		r.Difficulty, display.FormatMinutes(r.EstimatedTime), len(r.Steps)))

	a.ui.Println("")
	a.ui.PrintStep("Ingredients:")
	for _, ing := range r.Ingredients {
		a.ui.PrintInstruction(conversation.LineIngredient(ing))
	}
	a.ui.Println("")

	if !r.Unlocked {
		a.ui.PrintLocked(conversation.LineLocked(r.Title))
		return
	}
	a.ui.PrintChat(conversation.LineStartHint(r.Character))
}

// ── Session lifecycle ────────────────────────────────────────────

func (a *cliApp) startCooking(ctx context.Context) {
	a.mu.Lock()
	active, selected := a.session, a.selected
	a.mu.Unlock()

	if active != nil {
		a.ui.PrintHint(conversation.LineAlreadyActive())
		return
	}
	if selected == nil {
		a.ui.PrintHint(conversation.LinePickRecipeFirst())
		return
	}

	ctrl, err := a.engine.StartSession(ctx, selected.ID)
	if err != nil {
		if errors.Is(err, domain.ErrRecipeLocked) {
			a.ui.PrintLocked(conversation.LineLocked(selected.Title))
			return
		}
		a.ui.PrintUrgent(fmt.Sprintf("Error starting session: %v", err))
		return
	}

	a.mu.Lock()
	a.session = ctrl
	a.mu.Unlock()

	a.ui.PrintCharacter(ctrl.Character().Name, conversation.LineCookingStart(selected.Title, ctrl.Character()))
	if a.voiceOn {
		a.ui.PrintHint(conversation.LineVoiceHint())
	}
	go a.follow(ctrl)
}

// follow prints what changes in the session, whichever way the change
// came in (typed, voice, recognizer event), and keeps the wake word off
// while the session is listening.
func (a *cliApp) follow(ctrl *engine.Controller) {
	ch, cancel := ctrl.Watch()
	defer cancel()

	lastCursor := -1
	var lastErr error
	wasListening := false

	for s := range ch {
		if s.Phase == domain.PhaseStopped {
			break
		}
		if s.Cursor != lastCursor {
			lastCursor = s.Cursor
			a.printStep(s)
		}
		if s.LastError != lastErr {
			lastErr = s.LastError
			if s.LastError != nil {
				a.ui.PrintUrgent(display.ErrorText(s.LastError) + ". Type ok to dismiss.")
			}
		}
		if wasListening && !s.Listening && a.voiceOn {
			a.ui.PrintHint(conversation.LineMicOff())
		}
		wasListening = s.Listening

		if a.detector != nil {
			if s.Listening {
				a.detector.Pause()
			} else {
				a.detector.Resume()
			}
		}
	}

	if a.detector != nil {
		a.detector.Resume()
	}
}

func (a *cliApp) printStep(s domain.SessionState) {
	step := s.CurrentStep()
	a.ui.PrintStep(conversation.LineStepHeader(step.Order, s.Total(), step.Duration))
	a.ui.PrintCharacter(s.Character.Name, step.Instruction)
}

// endSession stops the current session, if any, and returns its title.
func (a *cliApp) endSession(ctx context.Context) (string, bool) {
	a.mu.Lock()
	ctrl := a.session
	a.session = nil
	a.mu.Unlock()

	if ctrl == nil {
		return "", false
	}
	title := ctrl.Snapshot().RecipeTitle
	if err := a.engine.EndSession(ctx, ctrl.ID()); err != nil {
		a.log.Error("ending session: %v", err)
	}
	return title, true
}

func (a *cliApp) leave(ctx context.Context) {
	title, ok := a.endSession(ctx)
	if !ok {
		a.ui.PrintHint(conversation.LineNoSession())
		return
	}
	a.ui.PrintChat(conversation.LineStopped(title))
	a.ui.Println("")
	a.showRecipes(ctx)
}

func (a *cliApp) quit(ctx context.Context) {
	a.endSession(ctx)
	a.ui.PrintChat(conversation.LineBye())
}

// ── Navigation and playback ──────────────────────────────────────

// withSession runs fn on the current session or prints the no-session line.
func (a *cliApp) withSession(fn func(*engine.Controller)) {
	ctrl := a.current()
	if ctrl == nil {
		a.ui.PrintHint(conversation.LineNoSession())
		return
	}
	fn(ctrl)
}

func (a *cliApp) report(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrSessionStopped) {
		a.ui.PrintHint(conversation.LineNoSession())
		return false
	}
	a.ui.PrintUrgent(fmt.Sprintf("Error: %v", err))
	return false
}

func (a *cliApp) next() {
	a.withSession(func(c *engine.Controller) {
		if c.Snapshot().AtLast() {
			a.ui.PrintHint(conversation.LineLastStep())
			return
		}
		a.report(c.NextStep())
	})
}

func (a *cliApp) previous() {
	a.withSession(func(c *engine.Controller) {
		if c.Snapshot().AtFirst() {
			a.ui.PrintHint(conversation.LineFirstStep())
			return
		}
		a.report(c.PreviousStep())
	})
}

func (a *cliApp) repeat() {
	a.withSession(func(c *engine.Controller) {
		if a.report(c.RepeatCurrentStep()) {
			a.printStep(c.Snapshot())
		}
	})
}

func (a *cliApp) pause() {
	a.withSession(func(c *engine.Controller) {
		if a.report(c.PausePlayback()) {
			a.ui.PrintHint(conversation.LinePaused())
		}
	})
}

func (a *cliApp) resume() {
	a.withSession(func(c *engine.Controller) {
		if a.report(c.ResumePlayback()) {
			a.ui.PrintHint(conversation.LineResumed())
		}
	})
}

func (a *cliApp) listen(ctx context.Context) {
	a.withSession(func(c *engine.Controller) {
		// Restarting a live recognizer would only flicker the mic.
		if c.Snapshot().Listening {
			a.ui.PrintHint(conversation.LineListeningAgain())
			return
		}
		// Start failures land on the session and are printed by follow.
		if err := c.StartListening(ctx); err == nil {
			a.ui.PrintHint(conversation.LineListeningAgain())
		}
	})
}

// onWakeWord re-arms listening on the current session. Called from the
// detector goroutine.
func (a *cliApp) onWakeWord(ctx context.Context) {
	ctrl := a.current()
	if ctrl == nil || ctrl.Snapshot().Listening {
		return
	}
	a.log.Info("wake word: re-arming session %s", ctrl.ID())
	go func() {
		if err := ctrl.StartListening(ctx); err == nil {
			a.ui.PrintHint(conversation.LineListeningAgain())
		}
	}()
}

func (a *cliApp) acknowledge() {
	a.withSession(func(c *engine.Controller) {
		if c.Snapshot().LastError == nil {
			a.ui.PrintHint(conversation.LineNothingToDismiss())
			return
		}
		c.ClearError()
		a.ui.PrintHint(conversation.LineErrorDismissed())
	})
}

func (a *cliApp) status() {
	a.withSession(func(c *engine.Controller) {
		a.ui.PrintInstruction(conversation.LineStatus(c.Snapshot()))
	})
}

// ── Questions ────────────────────────────────────────────────────

// ask sends the question to the session's character in the background;
// commands keep working while the answer is on its way.
func (a *cliApp) ask(ctx context.Context, question string) {
	a.withSession(func(c *engine.Controller) {
		a.ui.PrintHint(conversation.LineThinking())
		speaker := a.notifier.As(c.Character().Name)

		a.asking.Add(1)
		go func() {
			defer a.asking.Done()
			answer, err := c.AskQuestion(ctx, question)
			if err != nil {
				a.log.Warn("question failed: %v", err)
			}
			_ = speaker.Notify(ctx, answer)
		}()
	})
}

func (a *cliApp) showHelp() {
	a.ui.PrintStep("Commands:")
	for _, l := range conversation.HelpLines() {
		a.ui.PrintInstruction(fmt.Sprintf("  %-24s %s", l[0], l[1]))
	}
	if a.voiceOn {
		a.ui.Println("")
		a.ui.PrintHint(conversation.LineVoiceHint())
	}
}
