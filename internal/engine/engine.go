package engine

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"usersim/internal/config"
	"usersim/internal/study"
	"usersim/pkg/types"
)

// Broadcaster fans an event out to every connected viewer. Satisfied by
// the websocket registry in production and by recorders in tests.
type Broadcaster interface {
	Broadcast(event types.Event)
}

// Engine is the study lifecycle controller. It owns one runner (and
// therefore exactly one repeating ticker) per active study; every session
// of a study advances in lockstep on that study's tick, which is what
// keeps cross-session state free of races without per-session locks.
type Engine struct {
	store *study.Manager
	hub   Broadcaster
	clock Clock
	rand  Rand
	cfg   *config.EngineConfig

	mu      sync.Mutex
	runners map[string]*runner
}

// New creates an engine. Clock and Rand are injected so tests can advance
// virtual time and script outcomes.
func New(store *study.Manager, hub Broadcaster, clock Clock, rnd Rand, cfg *config.EngineConfig) *Engine {
	return &Engine{
		store:   store,
		hub:     hub,
		clock:   clock,
		rand:    rnd,
		cfg:     cfg,
		runners: make(map[string]*runner),
	}
}

// Run moves a study from setup to running, creates one session per
// (persona, task) pair and starts the study's ticker.
//
// FUNCTIONAL DISCOVERY: the setup guard is load-bearing — without it a
// second trigger would double-schedule the study and corrupt its state,
// so any study not in setup is rejected outright.
func (e *Engine) Run(studyID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.runners[studyID]; exists {
		return ErrStudyAlreadyRunning
	}

	err := e.store.Mutate(studyID, func(st *types.Study) error {
		if st.Status != types.StudyStatusSetup {
			return ErrStudyNotInSetup
		}
		st.Status = types.StudyStatusRunning
		st.UpdatedAt = time.Now()

		for _, persona := range st.Personas {
			for _, task := range st.Tasks {
				st.Sessions = append(st.Sessions, &types.Session{
					ID:           uuid.New().String(),
					PersonaID:    persona.ID,
					PersonaName:  persona.Name,
					TaskID:       task.ID,
					Status:       types.SessionStatusPending,
					EmotionalArc: make(map[int]string),
				})
			}
		}
		log.Printf("study %s running: %d sessions (%d personas x %d tasks)",
			st.ID, len(st.Sessions), len(st.Personas), len(st.Tasks))
		return nil
	})
	if err != nil {
		return err
	}

	r := &runner{
		engine:  e,
		studyID: studyID,
		ticker:  e.clock.NewTicker(e.cfg.TickInterval),
		stop:    make(chan struct{}),
	}
	e.runners[studyID] = r
	go r.loop()

	return nil
}

// Abort cancels a study's runner if one is active. Deleting or aborting a
// study while its timer runs must cancel that timer, otherwise it keeps
// ticking against orphaned data.
func (e *Engine) Abort(studyID string) {
	e.mu.Lock()
	r, exists := e.runners[studyID]
	e.mu.Unlock()

	if exists {
		r.halt()
		log.Printf("aborted runner for study %s", studyID)
	}
}

// Shutdown cancels every active runner.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	runners := make([]*runner, 0, len(e.runners))
	for _, r := range e.runners {
		runners = append(runners, r)
	}
	e.mu.Unlock()

	for _, r := range runners {
		r.halt()
	}
}

// ActiveRunners returns the number of live runners.
func (e *Engine) ActiveRunners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runners)
}

func (e *Engine) removeRunner(studyID string) {
	e.mu.Lock()
	delete(e.runners, studyID)
	e.mu.Unlock()
}

// tick outcomes steer the runner: keep ticking, move to the analysis
// cooldown, or bail out because the study is gone.
type tickResult int

const (
	tickAdvanced tickResult = iota
	tickAnalyzing
	tickStudyGone
)

// tick advances every active session of a study by one step and reports
// whether the study has moved into the analyzing phase.
func (e *Engine) tick(studyID string) tickResult {
	var events []types.Event

	result := tickAdvanced
	err := e.store.Mutate(studyID, func(st *types.Study) error {
		if st.Status != types.StudyStatusRunning {
			result = tickAnalyzing
			return nil
		}

		active := make([]*types.Session, 0, len(st.Sessions))
		for _, session := range st.Sessions {
			if session.Status != types.SessionStatusComplete {
				active = append(active, session)
			}
		}

		if len(active) == 0 {
			st.Status = types.StudyStatusAnalyzing
			st.UpdatedAt = time.Now()
			events = append(events, types.NewStudyAnalyzingEvent(st.ID))
			result = tickAnalyzing
			log.Printf("study %s analyzing", st.ID)
			return nil
		}

		for _, session := range active {
			if session.Status == types.SessionStatusPending {
				session.Status = types.SessionStatusRunning
			}

			session.TotalSteps++
			snap := deriveStep(session.ID, session.TotalSteps, e.cfg.ProgressPerStep)

			session.EmotionalArc[snap.Step] = snap.Emotion
			session.CurrentStep = snap.Step
			session.CurrentEmotion = snap.Emotion
			session.CurrentAction = snap.Action
			session.CurrentThinkAloud = snap.ThinkAloud
			session.CurrentScreenshotURL = snap.ScreenshotURL
			session.TaskProgress = snap.TaskProgress

			events = append(events, types.NewSessionStepEvent(session))

			if session.TotalSteps >= e.cfg.MaxSteps {
				session.Status = types.SessionStatusComplete
				session.TaskCompleted = e.rand.Float64() < e.cfg.SuccessRate
				if session.TaskCompleted {
					session.Summary = "Completed the task without assistance."
				} else {
					session.Summary = "Abandoned the task after repeated dead ends."
				}
				events = append(events, types.NewSessionCompleteEvent(session.ID, session.TaskCompleted, session.TotalSteps))
			}
		}

		// Aggregate percentage deliberately tops out below 100 so the
		// analysis phase owns the remaining range.
		totalSteps := 0
		for _, session := range st.Sessions {
			totalSteps += session.TotalSteps
		}
		denominator := float64(len(st.Sessions) * e.cfg.MaxSteps)
		percent := int(math.Round(float64(totalSteps) / denominator * float64(e.cfg.ProgressWeight)))
		st.Progress = percent
		st.UpdatedAt = time.Now()
		events = append(events, types.NewStudyProgressEvent(st.ID, percent))

		return nil
	})
	if err != nil {
		// Study deleted out from under the runner; stop ticking.
		return tickStudyGone
	}

	for _, event := range events {
		e.hub.Broadcast(event)
	}
	return result
}

// finalize hands the study to the report synthesizer and broadcasts the
// terminal event.
func (e *Engine) finalize(studyID string) {
	var events []types.Event

	err := e.store.Mutate(studyID, func(st *types.Study) error {
		if st.Status != types.StudyStatusAnalyzing {
			return nil
		}

		synthesizeReport(st, e.rand, e.cfg)
		st.Status = types.StudyStatusComplete
		st.Progress = 100
		st.UpdatedAt = time.Now()

		events = append(events, types.NewStudyCompleteEvent(st.ID, *st.Score, len(st.Issues)))
		log.Printf("study %s complete: score=%d issues=%d insights=%d",
			st.ID, *st.Score, len(st.Issues), len(st.Insights))
		return nil
	})
	if err != nil {
		return
	}

	for _, event := range events {
		e.hub.Broadcast(event)
	}
}
