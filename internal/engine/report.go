package engine

import (
	"github.com/google/uuid"

	"usersim/internal/config"
	"usersim/pkg/types"
)

// issueTemplate is one entry of the fixed finding catalogue the
// synthesizer distributes across sessions.
type issueTemplate struct {
	severity       string
	description    string
	recommendation string
}

var issueCatalogue = []issueTemplate{
	{
		severity:       "critical",
		description:    "Primary call to action is below the fold on smaller viewports",
		recommendation: "Move the primary action into the hero section",
	},
	{
		severity:       "major",
		description:    "Form validation errors appear only after submission",
		recommendation: "Validate fields inline as the user types",
	},
	{
		severity:       "major",
		description:    "Navigation labels use internal jargon unfamiliar to new users",
		recommendation: "Rename navigation entries to match user vocabulary",
	},
	{
		severity:       "minor",
		description:    "Loading states give no feedback for operations over two seconds",
		recommendation: "Add progress indicators to long-running operations",
	},
	{
		severity:       "minor",
		description:    "Confirmation dialogs use ambiguous button labels",
		recommendation: "Label buttons with the action they perform instead of yes/no",
	},
}

type insightTemplate struct {
	title  string
	detail string
	impact string
}

var insightCatalogue = []insightTemplate{
	{
		title:  "Users rely on search when navigation fails",
		detail: "Most personas switched to search after two failed navigation attempts",
		impact: "high",
	},
	{
		title:  "Emotional low point clusters around mid-task",
		detail: "Frustration peaked near the middle of the arc before recovering",
		impact: "medium",
	},
	{
		title:  "Completion confidence lags actual completion",
		detail: "Personas double-checked results even after succeeding",
		impact: "medium",
	},
	{
		title:  "First impressions set the tone for the whole session",
		detail: "Sessions that started curious stayed more resilient to setbacks",
		impact: "low",
	},
}

// synthesizeReport computes the terminal aggregate: the bounded score, the
// issue catalogue distributed round-robin across sessions, the ranked
// insights, and each session's backfilled step history. The live tick loop
// only retained the latest transient snapshot, so the full history is
// regenerated here from the same deterministic derivation rules.
func synthesizeReport(st *types.Study, rnd Rand, cfg *config.EngineConfig) {
	score := cfg.ScoreFloor + int(rnd.Float64()*float64(cfg.ScoreRange))
	st.Score = &score

	if len(st.Sessions) > 0 {
		for i, tpl := range issueCatalogue {
			session := st.Sessions[i%len(st.Sessions)]
			st.Issues = append(st.Issues, &types.Issue{
				ID:             uuid.New().String(),
				SessionID:      session.ID,
				Severity:       tpl.severity,
				Description:    tpl.description,
				Recommendation: tpl.recommendation,
			})
		}
	}

	for i, tpl := range insightCatalogue {
		st.Insights = append(st.Insights, &types.Insight{
			ID:     uuid.New().String(),
			Rank:   i + 1,
			Title:  tpl.title,
			Detail: tpl.detail,
			Impact: tpl.impact,
		})
	}

	for _, session := range st.Sessions {
		backfillSteps(session, cfg.ProgressPerStep)
	}
}

// backfillSteps regenerates a session's complete per-step history.
func backfillSteps(session *types.Session, progressPerStep int) {
	session.Steps = make([]*types.StepRecord, 0, session.TotalSteps)
	for step := 1; step <= session.TotalSteps; step++ {
		snap := deriveStep(session.ID, step, progressPerStep)
		session.Steps = append(session.Steps, &types.StepRecord{
			StepNumber:    snap.Step,
			Emotion:       snap.Emotion,
			Action:        snap.Action,
			ThinkAloud:    snap.ThinkAloud,
			ScreenshotURL: snap.ScreenshotURL,
			TaskProgress:  snap.TaskProgress,
		})
	}
}
