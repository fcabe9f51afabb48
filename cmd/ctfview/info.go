package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <ctf-file>",
	Short: "Display container information",
	Long:  `Display general information about a container file including format version, type count, and archive members.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]

	c, a, err := openContainer(path)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(output, "CTF File: %s\n", path)
	fmt.Fprintf(output, "Members: %d\n", a.Len())
	fmt.Fprintf(output, "Version: %d\n", c.Version())
	fmt.Fprintf(output, "Data Model: %s\n", c.Model().Name)
	if c.ParentName() != "" {
		fmt.Fprintf(output, "Parent: %s\n", c.ParentName())
	}
	fmt.Fprintf(output, "Types: %d\n", c.TypeCount())

	vars := 0
	for range c.Variables() {
		vars++
	}
	fmt.Fprintf(output, "Variables: %d\n", vars)

	if a.Len() > 1 {
		fmt.Fprintln(output)
		for name, member := range a.Containers() {
			fmt.Fprintf(output, "  %-24s %d types\n", name, member.TypeCount())
		}
	}
	return nil
}
