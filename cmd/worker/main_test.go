package main

import (
	"testing"

	_ "github.com/clubspace/clubspace/internal/testing/guard"
)

func TestWorkerReturnsInTestMode(t *testing.T) {
	main()
}
