package main

import (
	"os"

	"github.com/joho/godotenv"

	"automd/cmd"
)

func main() {
	// A missing .env is the normal case; only real load failures matter
	// and those surface again when the variables are read.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
