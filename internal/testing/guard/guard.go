package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("STITCHLAB_TEST_MODE") == "" {
			_ = os.Setenv("STITCHLAB_TEST_MODE", "1")
		}
	})
}
