package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonasjelonek/tftp/internal/cliopt"
)

var debugFlag string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tftp",
		Short:         "A TFTP client and server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&debugFlag, "debug", "d", "warn",
		"log level: off, error, warn, info, debug, trace")

	root.AddCommand(newServerCmd())
	root.AddCommand(newClientCmd())
	return root
}

// newLogger builds the logrus.Logger every subcommand hands to the engine
// as its tftp.Logger, leveled from the persistent --debug flag.
func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(cliopt.ParseDebugLevel(debugFlag).LogrusLevel())
	return l
}
