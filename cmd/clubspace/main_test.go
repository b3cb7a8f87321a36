package main

import (
	"testing"

	_ "github.com/clubspace/clubspace/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	main()
}
