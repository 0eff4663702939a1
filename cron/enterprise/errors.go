package enterprise

import (
	"fmt"

	"github.com/dailyyoga/cronkit/cron"
)

// ErrJobExists is returned when a job with the same name and group is registered
var ErrJobExists = fmt.Errorf("enterprise: job already exists")

func errJobExists(key cron.CompositeKey) error {
	return fmt.Errorf("%w: %s", ErrJobExists, key)
}
