package main

import (
	"github.com/joho/godotenv"

	"phase-gap-alerts/internal/cli"
)

func main() {
	// Missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	cli.Execute()
}
