// Package guard switches binaries into test mode when imported, so calling
// main from a test never dials postgres, redis or the identity provider.
package guard

import "os"

// Env is the variable read by app.InTestMode.
const Env = "CLUBSPACE_TEST_MODE"

func init() {
	if _, set := os.LookupEnv(Env); !set {
		_ = os.Setenv(Env, "1")
	}
}
