package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Ombudsman deadline notifier",
		Long:          "Classifies open ombudsman cases against their response deadlines and e-mails the owning departments.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCommand(),
		newRunCommand(),
		newMigrateCommand(),
		newAuthorizeCommand(),
	)
	return root
}
