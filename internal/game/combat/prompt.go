package combat

import (
	"context"
	"errors"
)

// ErrPromptCancelled is returned by a TickPrompt when the user dismissed it.
var ErrPromptCancelled = errors.New("tick prompt cancelled")

// TickPrompt asks the acting user how many ticks an action costs.
//
// Implementations return ok=false or ErrPromptCancelled when the user closes
// the prompt without answering, and must honour ctx cancellation.
type TickPrompt interface {
	AskTickDelta(ctx context.Context, c *Combat, acting *Combatant) (delta int, ok bool, err error)
}

// TickPromptFunc adapts a function to TickPrompt.
type TickPromptFunc func(ctx context.Context, c *Combat, acting *Combatant) (int, bool, error)

// AskTickDelta implements TickPrompt.
func (f TickPromptFunc) AskTickDelta(ctx context.Context, c *Combat, acting *Combatant) (int, bool, error) {
	return f(ctx, c, acting)
}

// cancelledPrompt is used when no prompt is configured.
type cancelledPrompt struct{}

func (cancelledPrompt) AskTickDelta(context.Context, *Combat, *Combatant) (int, bool, error) {
	return 0, false, ErrPromptCancelled
}

// isCancelled reports whether a prompt outcome means "do nothing".
func isCancelled(ok bool, err error) bool {
	if err == nil {
		return !ok
	}
	return errors.Is(err, ErrPromptCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
