package types

import (
	"time"
)

// Study lifecycle phases. A study only ever moves forward through these,
// never backward and never skipping a phase.
const (
	StudyStatusSetup     = "setup"
	StudyStatusRunning   = "running"
	StudyStatusAnalyzing = "analyzing"
	StudyStatusComplete  = "complete"
)

// Session lifecycle states.
const (
	SessionStatusPending  = "pending"
	SessionStatusRunning  = "running"
	SessionStatusComplete = "complete"
)

// Study is the root aggregate: it exclusively owns its tasks, personas,
// sessions, issues and insights, and they are destroyed together.
// FUNCTIONAL DISCOVERY: Score stays nil until the study reaches the
// complete phase and is fixed forever afterwards
type Study struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	TargetURL string     `json:"target_url"`
	Status    string     `json:"status"`
	Score     *int       `json:"score"`
	Progress  int        `json:"progress"`
	Tasks     []*Task    `json:"tasks"`
	Personas  []*Persona `json:"personas"`
	Sessions  []*Session `json:"sessions"`
	Issues    []*Issue   `json:"issues"`
	Insights  []*Insight `json:"insights"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Task is one unit of work a persona attempts, ordered within its study.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Position    int    `json:"position"`
}

// Persona references a template plus the resolved attribute map. Attributes
// only label simulator output; they never alter scheduling mechanics.
type Persona struct {
	ID         string            `json:"id"`
	Template   string            `json:"template"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
}

// Session is one (persona, task) pairing advancing one step per tick.
// The Current* fields mirror only the latest tick for live display; the
// full Steps history is backfilled during finalization.
type Session struct {
	ID            string         `json:"id"`
	PersonaID     string         `json:"persona_id"`
	PersonaName   string         `json:"persona_name"`
	TaskID        string         `json:"task_id"`
	Status        string         `json:"status"`
	TotalSteps    int            `json:"total_steps"`
	TaskCompleted bool           `json:"task_completed"`
	Summary       string         `json:"summary,omitempty"`
	EmotionalArc  map[int]string `json:"emotional_arc"`

	CurrentStep          int    `json:"current_step"`
	CurrentEmotion       string `json:"current_emotion"`
	CurrentAction        string `json:"current_action"`
	CurrentThinkAloud    string `json:"current_think_aloud"`
	CurrentScreenshotURL string `json:"current_screenshot_url"`
	TaskProgress         int    `json:"task_progress"`

	Steps []*StepRecord `json:"steps,omitempty"`
}

// StepRecord is one reconstructed step of a session's history.
type StepRecord struct {
	StepNumber    int    `json:"step_number"`
	Emotion       string `json:"emotion"`
	Action        string `json:"action"`
	ThinkAloud    string `json:"think_aloud"`
	ScreenshotURL string `json:"screenshot_url"`
	TaskProgress  int    `json:"task_progress"`
}

// Issue is a terminal-only finding created by the report synthesizer and
// cross-referenced to a session by identity.
type Issue struct {
	ID             string `json:"id"`
	SessionID      string `json:"session_id"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// Insight is a ranked terminal-only observation across the whole study.
type Insight struct {
	ID     string `json:"id"`
	Rank   int    `json:"rank"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Impact string `json:"impact"`
}
