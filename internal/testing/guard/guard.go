// Package guard forces test mode before any package under test initialises.
// Blank-import it from test files that exercise runtime wiring.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PICKLANE_TEST_MODE") == "" {
			_ = os.Setenv("PICKLANE_TEST_MODE", "1")
		}
	})
}
