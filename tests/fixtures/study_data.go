package fixtures

import "fmt"

// StudyScenario bundles the inputs for one simulated study.
type StudyScenario struct {
	Name     string
	Tasks    []string
	Personas []string
}

// GenerateStudyScenario builds a study input with the given cardinality.
// Persona templates cycle through the built-in catalogue.
func GenerateStudyScenario(taskCount, personaCount int) StudyScenario {
	templates := []string{"power_user", "newcomer", "skeptic", "busy_parent", "careful_reader"}

	tasks := make([]string, 0, taskCount)
	for i := 0; i < taskCount; i++ {
		tasks = append(tasks, fmt.Sprintf("complete checkout step %d", i+1))
	}

	personas := make([]string, 0, personaCount)
	for i := 0; i < personaCount; i++ {
		personas = append(personas, templates[i%len(templates)])
	}

	return StudyScenario{
		Name:     fmt.Sprintf("Scenario %d tasks x %d personas", taskCount, personaCount),
		Tasks:    tasks,
		Personas: personas,
	}
}
