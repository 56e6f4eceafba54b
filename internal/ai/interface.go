package ai

import (
	"context"

	"github.com/zeizeiwaii/Datastar/internal/modules/decision"
)

// Briefer turns a departure decision into a short note for the dispatcher on
// duty. Implementations may call external models; callers treat failures as
// non-fatal.
type Briefer interface {
	BriefDecision(ctx context.Context, d *decision.Decision) (*Brief, error)
}
