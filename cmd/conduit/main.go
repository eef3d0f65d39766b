package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "conduit",
		Short:         "Run workflows and inspect their execution history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "override the data directory")

	root.AddCommand(
		c.runCommand(),
		c.runsCommand(),
		c.logsCommand(),
		c.templatesCommand(),
		c.triggersCommand(),
		c.nodeTypesCommand(),
		c.migrateCommand(),
		c.healthCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand(&cli{out: os.Stdout}).Execute(); err != nil {
		log.Fatal(err)
	}
}
