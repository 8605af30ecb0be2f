package autofix

import (
	"context"
	"errors"

	"github.com/stevekinney/silvan-sub003/pkg/ciwait"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// AwaitChecks keeps summary.ci at pending while check reports pending and
// records the settled state, including timeout. A canceled wait leaves the
// summary at pending and a failing check clears it.
func (c *Controller) AwaitChecks(ctx context.Context, check ciwait.Check, opts ...ciwait.Option) (string, error) {
	if err := c.setCI(ctx, domain.CIPending); err != nil {
		return "", err
	}

	opts = append(opts,
		ciwait.WithLogger(c.logger),
		ciwait.OnWarning(func(w ciwait.Warning) {
			c.rec.Emit(ctx, domain.Event{
				Type:  domain.EventCIWait,
				Level: domain.LevelWarn,
				Payload: map[string]any{
					"elapsedMs":   w.Elapsed.Milliseconds(),
					"remainingMs": w.Remaining.Milliseconds(),
					"polls":       w.Polls,
				},
			})
		}),
	)
	res, err := ciwait.Poll(ctx, check, opts...)
	if err != nil && res.State != domain.CITimeout {
		if domain.KindOf(err) != domain.KindCanceled {
			// Nothing is waiting any more; the caller's step records the error.
			if serr := c.setCI(context.WithoutCancel(ctx), ""); serr != nil {
				return "", errors.Join(err, serr)
			}
		}
		return "", err
	}

	if serr := c.setCI(context.WithoutCancel(ctx), res.State); serr != nil {
		return res.State, serr
	}
	c.rec.Emit(ctx, domain.Event{
		Type:    domain.EventCIWait,
		Level:   ciLevel(res.State),
		Payload: map[string]any{"state": res.State, "polls": res.Polls, "elapsedMs": res.Elapsed.Milliseconds()},
	})
	return res.State, err
}

func (c *Controller) setCI(ctx context.Context, state string) error {
	now := c.now().UTC()
	_, err := c.rec.UpdateState(ctx, func(d *domain.RunData) error {
		if d.Summary == nil {
			d.Summary = &domain.Summary{}
		}
		d.Summary.CI = state
		d.Summary.UpdatedAt = now
		return nil
	})
	return err
}

func ciLevel(state string) domain.EventLevel {
	switch state {
	case domain.CIFailed:
		return domain.LevelError
	case domain.CITimeout:
		return domain.LevelWarn
	}
	return domain.LevelInfo
}
