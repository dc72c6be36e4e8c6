package main

import (
	"fmt"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

const (
	configFlag = "config"
	envFlag    = "env-file"
)

var globalFlags = map[string]cobraflags.Flag{
	configFlag: &cobraflags.StringFlag{
		Name:  configFlag,
		Value: "",
		Usage: "Optional YAML configuration file",
	},
	envFlag: &cobraflags.StringFlag{
		Name:  envFlag,
		Value: ".env",
		Usage: "Dotenv file loaded before reading the environment",
	},
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "felapi",
		Short:         "FEL accounts and authorization API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cobraflags.RegisterMap(root, globalFlags)

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newRolesCommand())
	root.AddCommand(newCreateAdminCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
