package process

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/wire"
)

// stepper exposes the Base-promoted Step method every delegate carries,
// letting HelperMain resume a decoded chain without re-running this
// link's own forward — the loop-breaker that keeps the helper from
// recursively re-staging its own process boundary.
type stepper interface {
	Step(ctx context.Context, rec *delegate.Record) error
}

// HelperMain is the helper-side counterpart of InvokeWithOptions: decode
// the before-image, resume the chain at step, encode the after-image.
// It reports failures as a plain error; cmd/delegate-function-run
// translates that into a stderr diagnostic and a non-zero exit. A
// failure in the user's own method is not reported this way — it is
// carried structurally in the after-image so the caller gets back a
// typed *delegate.UserMethodError rather than an opaque exit code.
func HelperMain(ctx context.Context, beforePath, afterPath string) error {
	before, err := os.Open(beforePath)
	if err != nil {
		return fmt.Errorf("helper: open before-image: %w", err)
	}
	chain, rec, err := wire.ReadBeforeImage(before)
	before.Close()
	if err != nil {
		return fmt.Errorf("helper: decode before-image: %w", err)
	}

	s, ok := chain.(stepper)
	if !ok {
		return fmt.Errorf("helper: decoded delegate %T does not embed delegate.Base", chain)
	}

	stepErr := s.Step(ctx, rec)

	after, err := os.Create(afterPath)
	if err != nil {
		return fmt.Errorf("helper: create after-image: %w", err)
	}
	defer after.Close()

	var userErr *delegate.UserMethodError
	if stepErr != nil && errors.As(stepErr, &userErr) {
		if err := wire.WriteAfterImageWithError(after, chain, rec, userErr); err != nil {
			return fmt.Errorf("helper: encode after-image: %w", err)
		}
		return nil
	}
	if stepErr != nil {
		return fmt.Errorf("helper: step failed: %w", stepErr)
	}

	if err := wire.WriteAfterImage(after, chain, rec); err != nil {
		return fmt.Errorf("helper: encode after-image: %w", err)
	}
	return nil
}
