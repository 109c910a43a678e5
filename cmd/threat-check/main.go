package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/threat-scorer/internal/adapters/store"
	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/di"
	"github.com/mikey/threat-scorer/internal/ports"
)

// Exit codes: 0 safe or suspicious, 1 failure, 2 malicious.
const exitMalicious = 2

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	var verdict core.Verdict
	err = container.Invoke(func(logger *zap.Logger, emailFilter ports.EmailFilter, st store.Store) error {
		defer logger.Sync()
		defer st.Close()

		raw, err := readInput(flags.InputFile)
		if err != nil {
			return err
		}
		logger.Debug("Read message", zap.Int("bytes", len(raw)), zap.String("file", flags.InputFile))

		analysis, err := emailFilter.ProcessMessage(context.Background(), raw)
		if analysis != nil {
			verdict = analysis.Verdict
		}
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if verdict == core.VerdictMalicious {
		os.Exit(exitMalicious)
	}
}

// readInput reads the message from the named file, or stdin when empty
func readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return data, nil
}
