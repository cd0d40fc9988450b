// Command delegate-function-run is the helper binary every external-
// process delegate invokes: it decodes a before-image, resumes the
// delegate chain from where the caller's process stopped, and encodes
// the after-image.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/aledsdavies/delegatefunc/delegate"
	"github.com/aledsdavies/delegatefunc/delegate/process"

	// Every concrete delegate kind must be registered so a decoded
	// before-image can name any of them.
	_ "github.com/aledsdavies/delegatefunc/delegate/docker"
	_ "github.com/aledsdavies/delegatefunc/delegate/slurm"
	_ "github.com/aledsdavies/delegatefunc/delegate/sshdelegate"
	_ "github.com/aledsdavies/delegatefunc/delegate/sudo"
)

const (
	exitOK            = 0
	exitHelperFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	var before, after, logLevel string

	rootCmd := &cobra.Command{
		Use:           "delegate-function-run",
		Short:         "Resume a delegate chain's call from a before-image and write its after-image",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				log.SetPrefix("delegate-function-run: ")
			}
			return process.HelperMain(context.Background(), before, after)
		},
	}

	rootCmd.Flags().StringVar(&before, "delegate-before", "", "path to the before-image")
	rootCmd.Flags().StringVar(&after, "delegate-after", "", "path to write the after-image")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log verbosity (unset disables helper-side logging)")
	rootCmd.MarkFlagRequired("delegate-before")
	rootCmd.MarkFlagRequired("delegate-after")

	if err := rootCmd.Execute(); err != nil {
		reportFailure(err)
		return exitHelperFailure
	}
	return exitOK
}

func reportFailure(err error) {
	var constructionErr *delegate.ConstructionError
	var serializationErr *delegate.SerializationFailure
	switch {
	case errors.As(err, &constructionErr):
		fmt.Fprintf(os.Stderr, "delegate-function-run: %v\n", constructionErr)
	case errors.As(err, &serializationErr):
		fmt.Fprintf(os.Stderr, "delegate-function-run: %v\n", serializationErr)
	default:
		fmt.Fprintf(os.Stderr, "delegate-function-run: %v\n", err)
	}
}
