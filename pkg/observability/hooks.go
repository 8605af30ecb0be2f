package observability

import (
	"log/slog"
	"time"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// LogHooks returns callbacks that log each lifecycle transition.
func LogHooks(logger *slog.Logger) domain.StepHooks {
	return domain.StepHooks{
		OnStepStart: func(runID, stepID string) {
			logger.Info("step_start", "run_id", runID, "step", stepID)
		},
		OnStepEnd: func(runID, stepID string, status domain.StepStatus, elapsed time.Duration) {
			logger.Info("step_end", "run_id", runID, "step", stepID, "status", status, "elapsed", elapsed)
		},
		OnFinish: func(runID string, status domain.RunStatus) {
			logger.Info("run_finish", "run_id", runID, "status", status)
		},
	}
}

// Chain combines hook sets; each callback fires in argument order.
func Chain(sets ...domain.StepHooks) domain.StepHooks {
	return domain.StepHooks{
		OnStepStart: func(runID, stepID string) {
			for _, h := range sets {
				if h.OnStepStart != nil {
					h.OnStepStart(runID, stepID)
				}
			}
		},
		OnStepEnd: func(runID, stepID string, status domain.StepStatus, elapsed time.Duration) {
			for _, h := range sets {
				if h.OnStepEnd != nil {
					h.OnStepEnd(runID, stepID, status, elapsed)
				}
			}
		},
		OnPersist: func(runID string) {
			for _, h := range sets {
				if h.OnPersist != nil {
					h.OnPersist(runID)
				}
			}
		},
		OnFinish: func(runID string, status domain.RunStatus) {
			for _, h := range sets {
				if h.OnFinish != nil {
					h.OnFinish(runID, status)
				}
			}
		},
	}
}
