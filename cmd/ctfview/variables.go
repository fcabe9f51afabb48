package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var variablesCmd = &cobra.Command{
	Use:   "variables <ctf-file>",
	Short: "List variables in the container",
	Long:  `List the named data objects recorded in a container file and their types.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runVariables,
}

func runVariables(cmd *cobra.Command, args []string) error {
	path := args[0]

	c, a, err := openContainer(path)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(output, "%-32s %-12s %s\n", "NAME", "TYPE ID", "DECLARATION")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 72))

	count := 0
	for name, id := range c.Variables() {
		decl, err := c.Declaration(id)
		if err != nil {
			decl = "?"
		}
		fmt.Fprintf(output, "%-32s 0x%08X   %s\n", name, uint32(id), decl)
		count++
	}

	fmt.Fprintf(output, "\nTotal: %d variables\n", count)
	return nil
}
