package softdelete

import (
	"errors"
	"fmt"
)

// ErrHardDeleteDisabled is returned by every destructive operation on a
// soft-delete model. Callers must use SoftDelete instead; expired records
// are removed only by the purge pipeline.
var ErrHardDeleteDisabled = errors.New("hard delete is disabled, use SoftDelete instead")

func hardDeleteError(collection, op string) error {
	return fmt.Errorf("%s.%s: %w", collection, op, ErrHardDeleteDisabled)
}
