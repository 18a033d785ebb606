package main

import (
	"os"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
