package manifest

import (
	"strconv"
	"strings"
)

// =============================================================================
// Startup Sequence
// =============================================================================

// StartupSequence is the strictly ordered launch sequence for an
// application service: each step must succeed before the next begins, and
// failure of any step aborts startup. There is no retry at this level -
// retry, if any, lives inside the individual step (the database wait).
type StartupSequence struct {
	Steps []string
}

// Render renders the sequence as a single shell invocation where each
// step gates the next.
func (s StartupSequence) Render() []string {
	if len(s.Steps) == 0 {
		return nil
	}
	return []string{"sh", "-c", strings.Join(s.Steps, " && ")}
}

// DefaultStartup is the launch sequence of the default application
// service: wait until the database accepts connections, apply schema
// migrations, then start the server.
func DefaultStartup(port int) StartupSequence {
	return StartupSequence{
		Steps: []string{
			"python manage.py wait_for_db",
			"python manage.py migrate",
			"python manage.py runserver 0.0.0.0:" + strconv.Itoa(port),
		},
	}
}
