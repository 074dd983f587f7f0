package cli

import (
	"github.com/spf13/cobra"
)

const versionString = "1.0.0"
const defaultConfigPath = "depaudit.toml"

type cliOptions struct {
	configPath   string
	verbose      bool
	includeTests bool
	noBuild      bool
	noCompile    bool
}

// newRootCommand builds the command tree. Commands write to the command's
// output stream so tests can capture it.
func newRootCommand() *cobra.Command {
	var opts cliOptions

	root := &cobra.Command{
		Use:   "depaudit",
		Short: "Find which dependencies a Java project actually uses",
		Long: `depaudit reads the compiled classes of a Maven project, extracts every
external class and member they reference and attributes each reference to
the dependency archive that provides it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(cmd.ErrOrStderr(), opts.verbose)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	root.AddCommand(
		newAnalyzeCommand(&opts),
		newWatchCommand(&opts),
		newExtractCommand(),
		newIndexCommand(),
		newPlatformCommand(),
		newVersionCommand(),
	)
	return root
}

func addRunFlags(cmd *cobra.Command, opts *cliOptions) {
	cmd.Flags().BoolVar(&opts.includeTests, "include-tests", false, "Also analyse test classes")
	cmd.Flags().BoolVar(&opts.noBuild, "no-build", false, "Use the existing dependency tree and archives instead of running the build tool")
	cmd.Flags().BoolVar(&opts.noCompile, "no-compile", false, "Do not compile the project before reading its classes")
}
