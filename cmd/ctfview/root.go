package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/ctf-go/archive"
	"github.com/skdltmxn/ctf-go/ctf"
)

var (
	outputFile string
	memberName string
	output     io.Writer
)

var rootCmd = &cobra.Command{
	Use:   "ctfview",
	Short: "CTF container viewer",
	Long: `ctfview is a command-line tool for inspecting compact type format
containers and archives.

It can display container information, list types and variables, and
look up types by name or identifier.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			output = f
		} else {
			output = os.Stdout
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if f, ok := output.(*os.File); ok && f != os.Stdout {
			f.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	rootCmd.PersistentFlags().StringVarP(&memberName, "member", "m", "", "archive member to inspect (default member if empty)")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(variablesCmd)
}

// openContainer loads a container or archive file and selects a member.
// The returned archive owns the container; callers close the archive.
func openContainer(path string) (*ctf.Container, *archive.Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}

	a, err := archive.OpenBytes(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open container: %w", err)
	}

	c, err := a.Lookup(memberName)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return c, a, nil
}
