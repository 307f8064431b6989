package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"usersim/internal/engine"
	"usersim/internal/study"
	"usersim/pkg/types"
)

// ViewerStats exposes the broadcast registry's size without coupling the
// API to the websocket package's concrete type.
type ViewerStats interface {
	Count() int
}

// Server is the REST collaborator surface: study CRUD, the run trigger and
// the status query. No business logic lives here, only HTTP handling and
// JSON serialization.
type Server struct {
	store   *study.Manager
	engine  *engine.Engine
	viewers ViewerStats
	router  chi.Router
}

// NewServer creates the API server and sets up its routes.
func NewServer(store *study.Manager, eng *engine.Engine, viewers ViewerStats) *Server {
	s := &Server{
		store:   store,
		engine:  eng,
		viewers: viewers,
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)

	s.router.Route("/api/studies", func(r chi.Router) {
		r.Get("/", s.listStudies)
		r.Post("/", s.createStudy)
		r.Get("/{studyID}", s.getStudy)
		r.Delete("/{studyID}", s.deleteStudy)
		r.Post("/{studyID}/run", s.runStudy)
		r.Get("/{studyID}/status", s.studyStatus)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/response shapes.
type CreateStudyRequest struct {
	Name      string   `json:"name"`
	TargetURL string   `json:"target_url"`
	Tasks     []string `json:"tasks"`
	Personas  []string `json:"personas"`
}

type StatusResponse struct {
	StudyID string `json:"study_id"`
	Phase   string `json:"phase"`
	Percent int    `json:"percent"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Studies   int       `json:"studies"`
	Runners   int       `json:"runners"`
	Viewers   int       `json:"viewers"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// POST /api/studies
func (s *Server) createStudy(w http.ResponseWriter, r *http.Request) {
	var req CreateStudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := s.store.CreateStudy(req.Name, req.TargetURL, req.Tasks, req.Personas)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusCreated, created)
}

// GET /api/studies
func (s *Server) listStudies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"studies": s.store.ListStudies(),
	})
}

// GET /api/studies/{studyID}
func (s *Server) getStudy(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	// Marshal under the store's read lock so a concurrent tick cannot
	// mutate the study mid-serialization.
	var payload []byte
	var marshalErr error
	err := s.store.View(studyID, func(st *types.Study) {
		payload, marshalErr = json.Marshal(st)
	})
	if err != nil {
		s.sendError(w, "study not found", http.StatusNotFound)
		return
	}
	if marshalErr != nil {
		s.sendError(w, "failed to serialize study", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// DELETE /api/studies/{studyID}
func (s *Server) deleteStudy(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	// Abort first: a deleted study must never leave a live timer behind.
	s.engine.Abort(studyID)

	if err := s.store.DeleteStudy(studyID); err != nil {
		s.sendError(w, "study not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "study deleted"})
}

// POST /api/studies/{studyID}/run
func (s *Server) runStudy(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	if err := s.engine.Run(studyID); err != nil {
		switch {
		case errors.Is(err, study.ErrStudyNotFound):
			s.sendError(w, "study not found", http.StatusNotFound)
		case errors.Is(err, engine.ErrStudyNotInSetup), errors.Is(err, engine.ErrStudyAlreadyRunning):
			s.sendError(w, err.Error(), http.StatusConflict)
		default:
			s.sendError(w, "failed to start study", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"study_id": studyID,
		"status":   types.StudyStatusRunning,
	})
}

// GET /api/studies/{studyID}/status
func (s *Server) studyStatus(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	var resp StatusResponse
	err := s.store.View(studyID, func(st *types.Study) {
		resp = StatusResponse{StudyID: st.ID, Phase: st.Status, Percent: st.Progress}
	})
	if err != nil {
		s.sendError(w, "study not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Studies:   s.store.Count(),
		Runners:   s.engine.ActiveRunners(),
		Viewers:   s.viewers.Count(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
