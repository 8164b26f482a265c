package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	cli "github.com/perchbot/perch/cmd/perch"
	"github.com/perchbot/perch/internal/config"
)

//go:embed etc/perch.yaml
var embeddedConfig []byte

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	var (
		c   *config.Config
		err error
	)
	if path := os.Getenv("PERCH_CONFIG"); path != "" {
		c, err = config.LoadFrom(path)
	} else {
		c, err = config.LoadFromBytes(embeddedConfig)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cli.SetupRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
