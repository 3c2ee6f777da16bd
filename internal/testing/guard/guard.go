package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("DEPOSITCORE_TEST_MODE") == "" {
			_ = os.Setenv("DEPOSITCORE_TEST_MODE", "1")
		}
	})
}
