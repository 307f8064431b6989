package engine

import "fmt"

// The derivation palettes. Step output is fully deterministic: emotion is
// indexed by step and clamps at the last entry, action cycles through its
// palette, narration is step-indexed with a generic fallback. The same
// rules drive both the live tick loop and the finalize-time history
// backfill, so both produce identical arcs.

var emotionPalette = []string{
	"curious",
	"focused",
	"confused",
	"frustrated",
	"determined",
	"hopeful",
	"relieved",
	"satisfied",
}

var actionPalette = []string{
	"scans the landing page",
	"clicks the primary call to action",
	"scrolls through the content",
	"hovers over the navigation menu",
	"reads the form labels",
	"types into the search field",
	"compares two options side by side",
}

var narrationLines = []string{
	"Okay, let me see what this page is about.",
	"I think this button is what I need.",
	"Hmm, that didn't do what I expected.",
	"Why is this option hidden all the way down here?",
	"Let me try a different route to get there.",
	"Ah, now it's starting to make sense.",
	"Almost there, just need to confirm this.",
	"That worked, I can see the result now.",
}

const fallbackNarration = "Keeps working through the remaining steps of the task."

// stepSnapshot is the derived output of one simulated step.
type stepSnapshot struct {
	Step          int
	Emotion       string
	Action        string
	ThinkAloud    string
	ScreenshotURL string
	TaskProgress  int
}

// emotionForStep clamps to the last palette entry once exhausted.
func emotionForStep(step int) string {
	idx := step - 1
	if idx >= len(emotionPalette) {
		idx = len(emotionPalette) - 1
	}
	return emotionPalette[idx]
}

// actionForStep cycles through the palette.
func actionForStep(step int) string {
	return actionPalette[(step-1)%len(actionPalette)]
}

// narrationForStep falls back to a generic phrase once the list runs out.
func narrationForStep(step int) string {
	idx := step - 1
	if idx >= len(narrationLines) {
		return fallbackNarration
	}
	return narrationLines[idx]
}

// deriveStep computes the deterministic output for a session's step.
func deriveStep(sessionID string, step, progressPerStep int) stepSnapshot {
	progress := step * progressPerStep
	if progress > 100 {
		progress = 100
	}
	return stepSnapshot{
		Step:          step,
		Emotion:       emotionForStep(step),
		Action:        actionForStep(step),
		ThinkAloud:    narrationForStep(step),
		ScreenshotURL: fmt.Sprintf("/screenshots/%s/step-%d.png", sessionID, step),
		TaskProgress:  progress,
	}
}
