package cli

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"depaudit/internal/core/errors"
	"depaudit/internal/engine/classfile"
	"depaudit/internal/engine/depgraph"
	"depaudit/internal/engine/index"
	"depaudit/internal/engine/platform"
	"depaudit/internal/engine/reference"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "depaudit v%s\n", versionString)
		},
	}
}

func newExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <class file or directory>...",
		Short: "Print the external references made by compiled classes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := reference.Map{}
			for _, arg := range args {
				m, err := extractPath(arg)
				if err != nil {
					return err
				}
				refs.Merge(m)
			}
			printReferences(cmd.OutOrStdout(), refs)
			return nil
		},
	}
}

// extractPath extracts one class file, or every class file under a
// directory. Malformed files inside a directory are skipped.
func extractPath(path string) (reference.Map, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "stat class path"), errors.CtxPath, path)
	}
	if !info.IsDir() {
		return extractFile(path)
	}

	out := reference.Map{}
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".class") {
			return nil
		}
		m, err := extractFile(p)
		if err != nil {
			if errors.IsCode(err, errors.CodeMalformedUnit) {
				slog.Warn("skipping class file", "path", p, "error", err)
				return nil
			}
			return err
		}
		out.Merge(m)
		return nil
	})
	return out, err
}

func extractFile(path string) (reference.Map, error) {
	u, err := classfile.ParseFile(path)
	if err != nil {
		return nil, err
	}
	m, err := reference.Extract(u)
	if err != nil {
		return nil, errors.AddContext(err, errors.CtxPath, path)
	}
	return m, nil
}

func printReferences(w io.Writer, refs reference.Map) {
	for _, class := range refs.Classes() {
		fmt.Fprintln(w, class)
		for _, r := range refs[class].Sorted() {
			fmt.Fprintf(w, "  %s\n", r)
		}
	}
}

func newIndexCommand() *cobra.Command {
	var treeFile string
	var workers int
	var showClasses bool

	cmd := &cobra.Command{
		Use:   "index <dependency directory>",
		Short: "Index the archives of a dependency directory against a dependency tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := depgraph.ParseFile(treeFile)
			if err != nil {
				return err
			}
			unattributed, err := index.Attribute(args[0], g)
			if err != nil {
				return err
			}
			ix, err := index.Build(cmd.Context(), g.Dependencies(), workers)
			if err != nil {
				return err
			}
			ix.AddUnattributed(unattributed...)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d classes from %d archives\n", ix.Len(), ix.Archives())
			if showClasses {
				for _, class := range ix.Classes() {
					fmt.Fprintf(out, "  %s  %s\n", class, candidateKeys(ix.Lookup(class)))
				}
			}
			if amb := ix.Ambiguous(); len(amb) > 0 {
				fmt.Fprintf(out, "ambiguous (%d):\n", len(amb))
				for _, class := range amb {
					fmt.Fprintf(out, "  %s  %s\n", class, candidateKeys(ix.Lookup(class)))
				}
			}
			if un := ix.Unattributed(); len(un) > 0 {
				fmt.Fprintf(out, "unattributed (%d):\n", len(un))
				for _, p := range un {
					fmt.Fprintf(out, "  %s\n", p)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&treeFile, "tree", "dependency-tree.txt", "Verbose dependency tree produced by the build tool")
	cmd.Flags().IntVar(&workers, "workers", 4, "Archives read in parallel")
	cmd.Flags().BoolVar(&showClasses, "classes", false, "List every indexed class")
	return cmd
}

func candidateKeys(nodes []*depgraph.Node) string {
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Key()
	}
	return strings.Join(keys, ", ")
}

func newPlatformCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platform",
		Short: "Manage the platform reference table",
	}

	var outPath string
	build := &cobra.Command{
		Use:   "build <archive>...",
		Short: "Build the platform table from runtime archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := platform.BuildFromArchives(cmd.Context(), args)
			if err != nil {
				return err
			}
			if err := platform.Save(outPath, table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d classes to %s\n", len(table), outPath)
			return nil
		},
	}
	build.Flags().StringVar(&outPath, "out", "platform.json", "Output path of the table")
	cmd.AddCommand(build)
	return cmd
}
