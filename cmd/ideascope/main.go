package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:           "ideascope",
		Short:         "Clarify, critique, validate and research a product proposal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(runCMD(), serveCMD(), migrateCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
