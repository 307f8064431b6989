package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func validStudy() *Study {
	return &Study{
		ID:        "study-1",
		Name:      "Checkout flow",
		TargetURL: "https://example.test",
		Status:    StudyStatusSetup,
		Tasks: []*Task{
			{ID: "task-1", Description: "find the pricing page", Position: 1},
		},
		Personas: []*Persona{
			{ID: "persona-1", Template: "newcomer", Name: "Noah the Newcomer"},
		},
	}
}

func TestStudyValidate(t *testing.T) {
	if err := validStudy().Validate(); err != nil {
		t.Fatalf("valid study rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Study)
		wantErr error
	}{
		{"empty name", func(s *Study) { s.Name = "" }, ErrInvalidStudyName},
		{"name too long", func(s *Study) { s.Name = strings.Repeat("n", 201) }, ErrInvalidStudyName},
		{"empty url", func(s *Study) { s.TargetURL = "" }, ErrInvalidTargetURL},
		{"url too long", func(s *Study) { s.TargetURL = strings.Repeat("u", 501) }, ErrInvalidTargetURL},
		{"no tasks", func(s *Study) { s.Tasks = nil }, ErrEmptyTaskList},
		{"blank task", func(s *Study) { s.Tasks[0].Description = "" }, ErrInvalidTask},
		{"task too long", func(s *Study) { s.Tasks[0].Description = strings.Repeat("t", 501) }, ErrInvalidTask},
		{"no personas", func(s *Study) { s.Personas = nil }, ErrEmptyPersonaList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			study := validStudy()
			tt.mutate(study)
			if err := study.Validate(); err != tt.wantErr {
				t.Errorf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusSets(t *testing.T) {
	for _, status := range []string{StudyStatusSetup, StudyStatusRunning, StudyStatusAnalyzing, StudyStatusComplete} {
		if !IsValidStudyStatus(status) {
			t.Errorf("study status %q rejected", status)
		}
	}
	if IsValidStudyStatus("paused") {
		t.Error("unknown study status accepted")
	}

	for _, status := range []string{SessionStatusPending, SessionStatusRunning, SessionStatusComplete} {
		if !IsValidSessionStatus(status) {
			t.Errorf("session status %q rejected", status)
		}
	}
	if IsValidSessionStatus("setup") {
		t.Error("study-only phase accepted as session status")
	}
}

// Every event must marshal with its type discriminator so viewers can
// dispatch on a single field.
func TestEventDiscriminators(t *testing.T) {
	session := &Session{
		ID:                   "session-1",
		PersonaName:          "Noah the Newcomer",
		CurrentStep:          3,
		CurrentEmotion:       "confused",
		CurrentAction:        "scrolling the page",
		CurrentThinkAloud:    "Where did the menu go?",
		CurrentScreenshotURL: "/screenshots/session-1/step-3.png",
		TaskProgress:         30,
	}

	events := []Event{
		NewStudyAnalyzingEvent("study-1"),
		NewStudyProgressEvent("study-1", 40),
		NewSessionStepEvent(session),
		NewSessionCompleteEvent("session-1", true, 8),
		NewStudyCompleteEvent("study-1", 77, 5),
	}

	seen := make(map[string]bool)
	for _, event := range events {
		eventType := event.EventType()
		if !IsValidEventType(eventType) {
			t.Errorf("event type %q not in the union", eventType)
		}
		if seen[eventType] {
			t.Errorf("duplicate event type %q", eventType)
		}
		seen[eventType] = true

		data, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal %q: %v", eventType, err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %q: %v", eventType, err)
		}
		if decoded["type"] != eventType {
			t.Errorf("wire type = %v, want %q", decoded["type"], eventType)
		}
	}
	if len(seen) != 5 {
		t.Errorf("event union covers %d types, want 5", len(seen))
	}

	if IsValidEventType("study:paused") {
		t.Error("unknown event type accepted")
	}
}

func TestSessionStepEventMirrorsSession(t *testing.T) {
	session := &Session{
		ID:                   "session-9",
		PersonaName:          "Sana the Skeptic",
		CurrentStep:          5,
		CurrentEmotion:       "frustrated",
		CurrentAction:        "re-reading the form labels",
		CurrentThinkAloud:    "This label makes no sense.",
		CurrentScreenshotURL: "/screenshots/session-9/step-5.png",
		TaskProgress:         50,
	}

	event := NewSessionStepEvent(session)
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	wantFields := map[string]any{
		"session_id":      "session-9",
		"persona_name":    "Sana the Skeptic",
		"step_number":     float64(5),
		"think_aloud":     "This label makes no sense.",
		"screenshot_url":  "/screenshots/session-9/step-5.png",
		"emotional_state": "frustrated",
		"action":          "re-reading the form labels",
		"task_progress":   float64(50),
	}
	for field, want := range wantFields {
		if decoded[field] != want {
			t.Errorf("field %s = %v, want %v", field, decoded[field], want)
		}
	}
}

func TestStudyMarshalsWithSnakeCaseFields(t *testing.T) {
	study := validStudy()
	score := 82
	study.Score = &score
	study.Progress = 100

	data, err := json.Marshal(study)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"id", "name", "target_url", "status", "score", "progress", "tasks", "personas", "created_at", "updated_at"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("missing field %q in study JSON", field)
		}
	}
	if decoded["score"] != float64(82) {
		t.Errorf("score = %v, want 82", decoded["score"])
	}
}
