package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/sonicres/pkg/acousticdna"
	"github.com/himanishpuri/sonicres/pkg/logger"
)

// Global flags
var (
	dbPath     string
	tempDir    string
	sampleRate int
	verbose    bool
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates a new AcousticDNA service with configured options
func createService() (acousticdna.Service, error) {
	return acousticdna.NewService(
		acousticdna.WithDBPath(dbPath),
		acousticdna.WithTempDir(tempDir),
		acousticdna.WithSampleRate(sampleRate),
	)
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sonicres",
		Short:        "Audio fingerprinting and streaming recognition CLI",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !verbose {
				logger.SetLevel(logger.WARN)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&dbPath, "db", getEnvOrDefault("ACOUSTIC_DB_PATH", "acousticdna.sqlite3"), "Path to the SQLite database file")
	pf.StringVar(&tempDir, "temp", getEnvOrDefault("ACOUSTIC_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	pf.IntVar(&sampleRate, "rate", 11025, "Audio sample rate for processing")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Show info-level logs")

	root.AddCommand(
		addCmd(),
		matchCmd(),
		listCmd(),
		deleteCmd(),
		streamCmd(),
		spectrogramCmd(),
	)
	return root
}

// withService opens the catalogue for the duration of fn.
func withService(fn func(svc acousticdna.Service) error) error {
	svc, err := createService()
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()
	return fn(svc)
}
