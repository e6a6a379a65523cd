package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional for the cli
	_ = godotenv.Load()

	rc, err := Cli(os.Args[1:], NewCliConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
	}
	os.Exit(rc)
}
