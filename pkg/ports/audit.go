package ports

import (
	"context"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// AuditSink receives audit events. Appends are best-effort from the caller's
// point of view: the sink is never read back for control decisions.
type AuditSink interface {
	Append(ctx context.Context, event domain.Event) error
}
