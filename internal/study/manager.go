package study

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"usersim/pkg/types"
)

// Manager is the in-memory study store. It is constructed at startup and
// injected into the engine and API, never held as a package global, so
// isolated instances can coexist in tests.
//
// ARCHITECTURAL DISCOVERY: one RWMutex guards the map and every study it
// contains; the engine's tick path mutates through Mutate and readers
// marshal inside View, so no caller ever touches a study unguarded.
type Manager struct {
	mu      sync.RWMutex
	studies map[string]*types.Study
}

// Summary is the listing projection of a study.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	TargetURL    string    `json:"target_url"`
	Status       string    `json:"status"`
	Score        *int      `json:"score"`
	Progress     int       `json:"progress"`
	TaskCount    int       `json:"task_count"`
	PersonaCount int       `json:"persona_count"`
	SessionCount int       `json:"session_count"`
	IssueCount   int       `json:"issue_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewManager creates an empty study store.
func NewManager() *Manager {
	return &Manager{
		studies: make(map[string]*types.Study),
	}
}

// CreateStudy builds a study in the setup phase from its task descriptions
// and persona template names.
func (m *Manager) CreateStudy(name, targetURL string, taskDescriptions, personaNames []string) (*types.Study, error) {
	now := time.Now()

	tasks := make([]*types.Task, 0, len(taskDescriptions))
	for i, description := range taskDescriptions {
		tasks = append(tasks, &types.Task{
			ID:          uuid.New().String(),
			Description: description,
			Position:    i + 1,
		})
	}

	personas := make([]*types.Persona, 0, len(personaNames))
	for _, template := range personaNames {
		persona, err := ResolvePersona(template)
		if err != nil {
			return nil, err
		}
		personas = append(personas, persona)
	}

	study := &types.Study{
		ID:        uuid.New().String(),
		Name:      name,
		TargetURL: targetURL,
		Status:    types.StudyStatusSetup,
		Tasks:     tasks,
		Personas:  personas,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := study.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.studies[study.ID] = study
	m.mu.Unlock()

	log.Printf("created study: id=%s name=%q tasks=%d personas=%d", study.ID, study.Name, len(tasks), len(personas))
	return study, nil
}

// View runs fn with read access to a study. Callers that need to marshal
// or copy study state do it inside fn, under the read lock.
func (m *Manager) View(studyID string, fn func(*types.Study)) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	study, exists := m.studies[studyID]
	if !exists {
		return ErrStudyNotFound
	}
	fn(study)
	return nil
}

// Mutate runs fn with exclusive access to a study. All engine writebacks
// go through here.
func (m *Manager) Mutate(studyID string, fn func(*types.Study) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	study, exists := m.studies[studyID]
	if !exists {
		return ErrStudyNotFound
	}
	return fn(study)
}

// ListStudies returns summaries of every stored study.
func (m *Manager) ListStudies() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]Summary, 0, len(m.studies))
	for _, study := range m.studies {
		summaries = append(summaries, Summary{
			ID:           study.ID,
			Name:         study.Name,
			TargetURL:    study.TargetURL,
			Status:       study.Status,
			Score:        study.Score,
			Progress:     study.Progress,
			TaskCount:    len(study.Tasks),
			PersonaCount: len(study.Personas),
			SessionCount: len(study.Sessions),
			IssueCount:   len(study.Issues),
			CreatedAt:    study.CreatedAt,
			UpdatedAt:    study.UpdatedAt,
		})
	}
	return summaries
}

// DeleteStudy removes a study and everything it owns. The caller must
// abort any live runner first — deleting under an active timer would
// leave it ticking against orphaned data.
func (m *Manager) DeleteStudy(studyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.studies[studyID]; !exists {
		return ErrStudyNotFound
	}
	delete(m.studies, studyID)

	log.Printf("deleted study: id=%s", studyID)
	return nil
}

// Count returns the number of stored studies.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.studies)
}
