package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/agendae/fieldsync/internal/cli"
)

func main() {
	// .env is optional; real deployments use FIELDSYNC_* variables or a
	// config file.
	_ = godotenv.Load()

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
