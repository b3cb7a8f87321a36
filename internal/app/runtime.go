package app

import (
	"os"
	"strconv"
	"sync"
)

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv("CLUBSPACE_TEST_MODE"))
	return on
})

// InTestMode reports whether binaries should return before opening
// connections to postgres, redis or the identity provider. The variable is
// read once per process.
func InTestMode() bool {
	return testMode()
}
