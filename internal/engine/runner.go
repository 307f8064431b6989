package engine

import "sync"

// runner drives one study: a single repeating ticker while the study is
// running, then one cooldown delay before finalization.
type runner struct {
	engine  *Engine
	studyID string
	ticker  Ticker
	stop    chan struct{}
	once    sync.Once
}

func (r *runner) loop() {
	defer r.engine.removeRunner(r.studyID)

	for {
		select {
		case <-r.ticker.C():
			switch r.engine.tick(r.studyID) {
			case tickAdvanced:
				continue
			case tickStudyGone:
				r.ticker.Stop()
				return
			}
			// All sessions finished: stop the per-study timer and wait
			// out the analysis cooldown before synthesizing the report.
			r.ticker.Stop()
			select {
			case <-r.engine.clock.After(r.engine.cfg.AnalysisCooldown):
				r.engine.finalize(r.studyID)
			case <-r.stop:
			}
			return

		case <-r.stop:
			r.ticker.Stop()
			return
		}
	}
}

// halt cancels the runner. Safe to call more than once.
func (r *runner) halt() {
	r.once.Do(func() { close(r.stop) })
}
