package types

// Validate ensures a study draft meets all requirements before it is stored.
// Validation at type level keeps the rules identical for every caller.
func (s *Study) Validate() error {
	if len(s.Name) < 1 || len(s.Name) > 200 {
		return ErrInvalidStudyName
	}
	if len(s.TargetURL) < 1 || len(s.TargetURL) > 500 {
		return ErrInvalidTargetURL
	}
	if len(s.Tasks) == 0 {
		return ErrEmptyTaskList
	}
	for _, task := range s.Tasks {
		if len(task.Description) < 1 || len(task.Description) > 500 {
			return ErrInvalidTask
		}
	}
	if len(s.Personas) == 0 {
		return ErrEmptyPersonaList
	}
	return nil
}

// IsValidStudyStatus checks the phase value against the closed set.
func IsValidStudyStatus(status string) bool {
	switch status {
	case StudyStatusSetup, StudyStatusRunning, StudyStatusAnalyzing, StudyStatusComplete:
		return true
	default:
		return false
	}
}

// IsValidSessionStatus checks the session state against the closed set.
func IsValidSessionStatus(status string) bool {
	switch status {
	case SessionStatusPending, SessionStatusRunning, SessionStatusComplete:
		return true
	default:
		return false
	}
}

// IsValidEventType reports whether a type discriminator belongs to the
// event union.
func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventStudyAnalyzing,
		EventStudyProgress,
		EventSessionStep,
		EventSessionComplete,
		EventStudyComplete:
		return true
	default:
		return false
	}
}
