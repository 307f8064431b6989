package engine

import (
	"sync"
	"testing"
	"time"

	"usersim/internal/config"
	"usersim/internal/study"
	"usersim/pkg/types"
)

// recorder captures broadcast events in order.
type recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recorder) Broadcast(event types.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) ofType(eventType string) []types.Event {
	var out []types.Event
	for _, event := range r.snapshot() {
		if event.EventType() == eventType {
			out = append(out, event)
		}
	}
	return out
}

// scriptedRand replays a fixed sequence of values.
type scriptedRand struct {
	mu     sync.Mutex
	values []float64
	next   int
}

func (s *scriptedRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

func testEngineConfig() *config.EngineConfig {
	cfg := config.DefaultConfig().Engine
	cfg.MaxSteps = 8
	return cfg
}

type harness struct {
	store    *study.Manager
	clock    *ManualClock
	rand     *scriptedRand
	recorder *recorder
	engine   *Engine
}

func newHarness(t *testing.T, cfg *config.EngineConfig, randValues []float64) *harness {
	t.Helper()
	if cfg == nil {
		cfg = testEngineConfig()
	}
	h := &harness{
		store:    study.NewManager(),
		clock:    NewManualClock(),
		rand:     &scriptedRand{values: randValues},
		recorder: &recorder{},
	}
	h.engine = New(h.store, h.recorder, h.clock, h.rand, cfg)
	t.Cleanup(h.engine.Shutdown)
	return h
}

func (h *harness) createStudy(t *testing.T, tasks, personas []string) *types.Study {
	t.Helper()
	st, err := h.store.CreateStudy("Checkout flow", "https://example.test", tasks, personas)
	if err != nil {
		t.Fatalf("CreateStudy failed: %v", err)
	}
	return st
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) studyStatus(t *testing.T, studyID string) string {
	t.Helper()
	var status string
	if err := h.store.View(studyID, func(st *types.Study) { status = st.Status }); err != nil {
		t.Fatalf("View failed: %v", err)
	}
	return status
}

func TestEngine_RunCreatesPersonaTaskCrossProduct(t *testing.T) {
	h := newHarness(t, nil, []float64{0.5})
	st := h.createStudy(t, []string{"find pricing", "sign up", "invite a teammate"}, []string{"power_user", "newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	h.mustView(t, st.ID, func(st *types.Study) {
		if st.Status != types.StudyStatusRunning {
			t.Errorf("status = %s, want running", st.Status)
		}
		if len(st.Sessions) != 6 {
			t.Fatalf("sessions = %d, want 2 personas x 3 tasks = 6", len(st.Sessions))
		}
		seen := make(map[string]bool)
		for _, session := range st.Sessions {
			pair := session.PersonaID + "/" + session.TaskID
			if seen[pair] {
				t.Errorf("duplicate (persona, task) pairing %s", pair)
			}
			seen[pair] = true
			if session.Status != types.SessionStatusPending {
				t.Errorf("new session status = %s, want pending", session.Status)
			}
		}
	})
}

func (h *harness) mustView(t *testing.T, studyID string, fn func(*types.Study)) {
	t.Helper()
	if err := h.store.View(studyID, fn); err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestEngine_RunRejectsStudyNotInSetup(t *testing.T) {
	h := newHarness(t, nil, []float64{0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if err := h.engine.Run(st.ID); err != ErrStudyAlreadyRunning {
		t.Errorf("second Run = %v, want ErrStudyAlreadyRunning", err)
	}

	if err := h.engine.Run("no-such-study"); err != study.ErrStudyNotFound {
		t.Errorf("Run on unknown study = %v, want ErrStudyNotFound", err)
	}
}

func TestEngine_RunRejectsCompletedStudy(t *testing.T) {
	h := newHarness(t, nil, []float64{0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"newcomer"})

	// Force the terminal phase directly.
	if err := h.store.Mutate(st.ID, func(s *types.Study) error {
		s.Status = types.StudyStatusComplete
		return nil
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	if err := h.engine.Run(st.ID); err != ErrStudyNotInSetup {
		t.Errorf("Run on complete study = %v, want ErrStudyNotInSetup", err)
	}
}

func TestEngine_StepsAreMonotonicAndBounded(t *testing.T) {
	cfg := testEngineConfig()
	h := newHarness(t, cfg, []float64{0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"power_user", "newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	previous := map[string]int{}
	for tick := 1; tick <= cfg.MaxSteps; tick++ {
		h.clock.Tick()

		want := tick
		waitFor(t, "tick to apply", func() bool {
			ok := true
			h.mustView(t, st.ID, func(s *types.Study) {
				for _, session := range s.Sessions {
					if session.TotalSteps != want {
						ok = false
					}
				}
			})
			return ok
		})

		h.mustView(t, st.ID, func(s *types.Study) {
			for _, session := range s.Sessions {
				if session.TotalSteps != previous[session.ID]+1 {
					t.Errorf("tick %d: session %s jumped from %d to %d",
						tick, session.ID, previous[session.ID], session.TotalSteps)
				}
				if session.TotalSteps > cfg.MaxSteps {
					t.Errorf("session %s exceeded max steps: %d", session.ID, session.TotalSteps)
				}
				previous[session.ID] = session.TotalSteps
			}
		})
	}

	h.mustView(t, st.ID, func(s *types.Study) {
		for _, session := range s.Sessions {
			if session.Status != types.SessionStatusComplete {
				t.Errorf("after %d ticks session %s is %s, want complete",
					cfg.MaxSteps, session.ID, session.Status)
			}
			if len(session.EmotionalArc) != cfg.MaxSteps {
				t.Errorf("emotional arc has %d entries, want %d", len(session.EmotionalArc), cfg.MaxSteps)
			}
		}
	})
}

// Scenario: 2 personas x 1 task, max 8 steps. The 4th tick's broadcast
// percentage must be round((2x4)/(2x8)*80) = 40.
func TestEngine_ProgressPercentageAtMidpoint(t *testing.T) {
	h := newHarness(t, nil, []float64{0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"power_user", "newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for tick := 0; tick < 4; tick++ {
		h.clock.Tick()
	}
	waitFor(t, "four progress events", func() bool {
		return len(h.recorder.ofType(types.EventStudyProgress)) >= 4
	})

	progress := h.recorder.ofType(types.EventStudyProgress)
	fourth := progress[3].(types.StudyProgressEvent)
	if fourth.Percent != 40 {
		t.Errorf("4th tick percent = %d, want 40", fourth.Percent)
	}
	if fourth.Phase != types.StudyStatusRunning {
		t.Errorf("4th tick phase = %s, want running", fourth.Phase)
	}

	// Earlier ticks scale linearly: 10, 20, 30.
	for i, want := range []int{10, 20, 30} {
		if got := progress[i].(types.StudyProgressEvent).Percent; got != want {
			t.Errorf("tick %d percent = %d, want %d", i+1, got, want)
		}
	}
}

func TestEngine_PhaseOrderingThroughCompletion(t *testing.T) {
	cfg := testEngineConfig()
	// Outcomes: both sessions succeed, then the score draw of 0.5 gives
	// 60 + 0.5*35 = 77.
	h := newHarness(t, cfg, []float64{0.1, 0.1, 0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"power_user", "newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Ticks 1..8 run the sessions to completion.
	for tick := 0; tick < cfg.MaxSteps; tick++ {
		h.clock.Tick()
	}
	waitFor(t, "session completion events", func() bool {
		return len(h.recorder.ofType(types.EventSessionComplete)) == 2
	})
	if got := h.studyStatus(t, st.ID); got != types.StudyStatusRunning {
		t.Fatalf("status after final session tick = %s, want running until next tick", got)
	}

	// Tick 9 finds no active session and flips to analyzing.
	h.clock.Tick()
	waitFor(t, "analyzing phase", func() bool {
		return h.studyStatus(t, st.ID) == types.StudyStatusAnalyzing
	})
	if n := len(h.recorder.ofType(types.EventStudyAnalyzing)); n != 1 {
		t.Errorf("analyzing events = %d, want exactly 1", n)
	}

	// Finalization waits out the cooldown.
	waitFor(t, "cooldown waiter", func() bool { return h.clock.PendingAfters() == 1 })
	h.clock.Fire()
	waitFor(t, "complete phase", func() bool {
		return h.studyStatus(t, st.ID) == types.StudyStatusComplete
	})

	completes := h.recorder.ofType(types.EventStudyComplete)
	if len(completes) != 1 {
		t.Fatalf("study complete events = %d, want exactly 1", len(completes))
	}
	final := completes[0].(types.StudyCompleteEvent)
	if final.Score != 77 {
		t.Errorf("score = %d, want 77 from scripted draw", final.Score)
	}
	if final.IssuesCount == 0 {
		t.Error("expected synthesized issues in the final event")
	}

	waitFor(t, "runner cleanup", func() bool { return h.engine.ActiveRunners() == 0 })

	// Event ordering: every session:step precedes analyzing, which
	// precedes complete.
	var sawAnalyzing, sawComplete bool
	for _, event := range h.recorder.snapshot() {
		switch event.EventType() {
		case types.EventStudyAnalyzing:
			sawAnalyzing = true
		case types.EventStudyComplete:
			sawComplete = true
		case types.EventSessionStep, types.EventStudyProgress, types.EventSessionComplete:
			if sawAnalyzing || sawComplete {
				t.Fatalf("%s broadcast after the analyzing transition", event.EventType())
			}
		}
	}
	if !sawAnalyzing || !sawComplete {
		t.Error("missing analyzing or complete event")
	}
}

func TestEngine_CompletionOutcomeFollowsInjectedRand(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxSteps = 2
	// First session outcome 0.95 (>= 0.8 rate: failure), second 0.1
	// (success).
	h := newHarness(t, cfg, []float64{0.95, 0.1, 0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"power_user", "newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	h.clock.Tick()
	h.clock.Tick()
	waitFor(t, "both sessions complete", func() bool {
		return len(h.recorder.ofType(types.EventSessionComplete)) == 2
	})

	outcomes := h.recorder.ofType(types.EventSessionComplete)
	first := outcomes[0].(types.SessionCompleteEvent)
	second := outcomes[1].(types.SessionCompleteEvent)
	if first.Completed {
		t.Error("first session should fail its weighted outcome draw")
	}
	if !second.Completed {
		t.Error("second session should succeed its weighted outcome draw")
	}
	if first.TotalSteps != 2 || second.TotalSteps != 2 {
		t.Errorf("total steps = %d/%d, want 2/2", first.TotalSteps, second.TotalSteps)
	}

	h.mustView(t, st.ID, func(s *types.Study) {
		for _, session := range s.Sessions {
			if session.TaskCompleted && session.Summary != "Completed the task without assistance." {
				t.Errorf("success summary = %q", session.Summary)
			}
			if !session.TaskCompleted && session.Summary != "Abandoned the task after repeated dead ends." {
				t.Errorf("failure summary = %q", session.Summary)
			}
		}
	})
}

func TestEngine_FinalizeBackfillsStepHistory(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxSteps = 3
	h := newHarness(t, cfg, []float64{0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for tick := 0; tick < cfg.MaxSteps+1; tick++ {
		h.clock.Tick()
	}
	waitFor(t, "cooldown waiter", func() bool { return h.clock.PendingAfters() == 1 })
	h.clock.Fire()
	waitFor(t, "complete phase", func() bool {
		return h.studyStatus(t, st.ID) == types.StudyStatusComplete
	})

	h.mustView(t, st.ID, func(s *types.Study) {
		if s.Score == nil {
			t.Fatal("score is nil after completion")
		}
		if *s.Score < 60 || *s.Score >= 95 {
			t.Errorf("score %d outside [60, 95)", *s.Score)
		}
		if len(s.Insights) == 0 {
			t.Error("no insights synthesized")
		}
		for i, insight := range s.Insights {
			if insight.Rank != i+1 {
				t.Errorf("insight %d rank = %d", i, insight.Rank)
			}
		}
		for _, issue := range s.Issues {
			if issue.SessionID != s.Sessions[0].ID {
				t.Errorf("issue references unknown session %s", issue.SessionID)
			}
		}

		session := s.Sessions[0]
		if len(session.Steps) != session.TotalSteps {
			t.Fatalf("backfilled %d steps, want %d", len(session.Steps), session.TotalSteps)
		}
		for i, record := range session.Steps {
			if record.StepNumber != i+1 {
				t.Errorf("step %d has number %d", i, record.StepNumber)
			}
			// The backfill must agree with the live derivation.
			if record.Emotion != session.EmotionalArc[record.StepNumber] {
				t.Errorf("step %d emotion %q disagrees with live arc %q",
					record.StepNumber, record.Emotion, session.EmotionalArc[record.StepNumber])
			}
		}
		last := session.Steps[len(session.Steps)-1]
		if last.ThinkAloud != session.CurrentThinkAloud || last.ScreenshotURL != session.CurrentScreenshotURL {
			t.Error("final backfilled step disagrees with last live snapshot")
		}
	})
}

func TestEngine_IssuesDistributedRoundRobin(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxSteps = 1
	h := newHarness(t, cfg, []float64{0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"power_user", "newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	h.clock.Tick()
	h.clock.Tick()
	waitFor(t, "cooldown waiter", func() bool { return h.clock.PendingAfters() == 1 })
	h.clock.Fire()
	waitFor(t, "complete phase", func() bool {
		return h.studyStatus(t, st.ID) == types.StudyStatusComplete
	})

	h.mustView(t, st.ID, func(s *types.Study) {
		if len(s.Issues) < 2 {
			t.Fatalf("issues = %d, want the full catalogue", len(s.Issues))
		}
		for i, issue := range s.Issues {
			want := s.Sessions[i%len(s.Sessions)].ID
			if issue.SessionID != want {
				t.Errorf("issue %d assigned to %s, want round-robin %s", i, issue.SessionID, want)
			}
			if issue.Severity == "" || issue.Description == "" || issue.Recommendation == "" {
				t.Errorf("issue %d has empty fields", i)
			}
		}
	})
}

func TestEngine_AbortCancelsTimer(t *testing.T) {
	h := newHarness(t, nil, []float64{0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	h.clock.Tick()
	waitFor(t, "first tick", func() bool {
		steps := 0
		h.mustView(t, st.ID, func(s *types.Study) { steps = s.Sessions[0].TotalSteps })
		return steps == 1
	})

	h.engine.Abort(st.ID)
	waitFor(t, "runner removal", func() bool { return h.engine.ActiveRunners() == 0 })

	// Aborting twice is harmless, and the study can be deleted with no
	// timer left behind.
	h.engine.Abort(st.ID)
	if err := h.store.DeleteStudy(st.ID); err != nil {
		t.Fatalf("DeleteStudy after abort failed: %v", err)
	}
}

func TestEngine_DeletedStudyStopsItsRunner(t *testing.T) {
	h := newHarness(t, nil, []float64{0.5})
	st := h.createStudy(t, []string{"find pricing"}, []string{"newcomer"})

	if err := h.engine.Run(st.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Delete out from under the runner; the next tick notices and exits.
	if err := h.store.DeleteStudy(st.ID); err != nil {
		t.Fatalf("DeleteStudy failed: %v", err)
	}
	h.clock.Tick()
	waitFor(t, "runner exit after deletion", func() bool { return h.engine.ActiveRunners() == 0 })
}
