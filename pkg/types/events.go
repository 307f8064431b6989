package types

// Event type discriminators sent to viewers over the WebSocket channel.
// ARCHITECTURAL DISCOVERY: the event taxonomy is a closed union keyed by
// the Type field so every consumer can switch exhaustively over five kinds
const (
	EventStudyAnalyzing  = "study:analyzing"
	EventStudyProgress   = "study:progress"
	EventSessionStep     = "session:step"
	EventSessionComplete = "session:complete"
	EventStudyComplete   = "study:complete"
)

// Event is implemented only by the five concrete event structs below.
type Event interface {
	EventType() string
}

// StudyAnalyzingEvent announces the transition into the analyzing phase.
type StudyAnalyzingEvent struct {
	Type    string `json:"type"`
	StudyID string `json:"study_id"`
	Phase   string `json:"phase"`
}

func NewStudyAnalyzingEvent(studyID string) StudyAnalyzingEvent {
	return StudyAnalyzingEvent{Type: EventStudyAnalyzing, StudyID: studyID, Phase: StudyStatusAnalyzing}
}

func (e StudyAnalyzingEvent) EventType() string { return EventStudyAnalyzing }

// StudyProgressEvent carries the aggregate percentage computed each tick.
type StudyProgressEvent struct {
	Type    string `json:"type"`
	StudyID string `json:"study_id"`
	Percent int    `json:"percent"`
	Phase   string `json:"phase"`
}

func NewStudyProgressEvent(studyID string, percent int) StudyProgressEvent {
	return StudyProgressEvent{Type: EventStudyProgress, StudyID: studyID, Percent: percent, Phase: StudyStatusRunning}
}

func (e StudyProgressEvent) EventType() string { return EventStudyProgress }

// SessionStepEvent mirrors one session's latest simulated step.
type SessionStepEvent struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	PersonaName    string `json:"persona_name"`
	StepNumber     int    `json:"step_number"`
	ThinkAloud     string `json:"think_aloud"`
	ScreenshotURL  string `json:"screenshot_url"`
	EmotionalState string `json:"emotional_state"`
	Action         string `json:"action"`
	TaskProgress   int    `json:"task_progress"`
}

func NewSessionStepEvent(s *Session) SessionStepEvent {
	return SessionStepEvent{
		Type:           EventSessionStep,
		SessionID:      s.ID,
		PersonaName:    s.PersonaName,
		StepNumber:     s.CurrentStep,
		ThinkAloud:     s.CurrentThinkAloud,
		ScreenshotURL:  s.CurrentScreenshotURL,
		EmotionalState: s.CurrentEmotion,
		Action:         s.CurrentAction,
		TaskProgress:   s.TaskProgress,
	}
}

func (e SessionStepEvent) EventType() string { return EventSessionStep }

// SessionCompleteEvent reports a session's terminal outcome.
type SessionCompleteEvent struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	Completed  bool   `json:"completed"`
	TotalSteps int    `json:"total_steps"`
}

func NewSessionCompleteEvent(sessionID string, completed bool, totalSteps int) SessionCompleteEvent {
	return SessionCompleteEvent{Type: EventSessionComplete, SessionID: sessionID, Completed: completed, TotalSteps: totalSteps}
}

func (e SessionCompleteEvent) EventType() string { return EventSessionComplete }

// StudyCompleteEvent is the final event of a study run.
type StudyCompleteEvent struct {
	Type        string `json:"type"`
	StudyID     string `json:"study_id"`
	Score       int    `json:"score"`
	IssuesCount int    `json:"issues_count"`
}

func NewStudyCompleteEvent(studyID string, score, issuesCount int) StudyCompleteEvent {
	return StudyCompleteEvent{Type: EventStudyComplete, StudyID: studyID, Score: score, IssuesCount: issuesCount}
}

func (e StudyCompleteEvent) EventType() string { return EventStudyComplete }
