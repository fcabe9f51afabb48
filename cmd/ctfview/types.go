package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/ctf-go/ctf"
)

var (
	typesKind  string
	typesLimit int
)

var typesCmd = &cobra.Command{
	Use:   "types <ctf-file>",
	Short: "List types in the container",
	Long: `List types from a container file.

Use --kind to filter by type kind (integer, float, pointer, array,
function, struct, union, enum, forward, typedef).`,
	Args: cobra.ExactArgs(1),
	RunE: runTypes,
}

func init() {
	typesCmd.Flags().StringVarP(&typesKind, "kind", "k", "", "filter by type kind")
	typesCmd.Flags().IntVarP(&typesLimit, "limit", "n", 0, "limit number of types shown (0 = unlimited)")
}

func runTypes(cmd *cobra.Command, args []string) error {
	path := args[0]

	c, a, err := openContainer(path)
	if err != nil {
		return err
	}
	defer a.Close()

	kindFilter := ctf.KindUnknown
	if typesKind != "" {
		kindFilter = parseKind(strings.ToLower(typesKind))
		if kindFilter == ctf.KindUnknown {
			return fmt.Errorf("unknown type kind: %s", typesKind)
		}
	}

	fmt.Fprintf(output, "%-12s %-12s %-8s %s\n", "ID", "KIND", "SIZE", "DECLARATION")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 72))

	count := 0
	for id := range c.Types() {
		kind, err := c.Kind(id)
		if err != nil {
			continue
		}
		if kindFilter != ctf.KindUnknown && kind != kindFilter {
			continue
		}

		sizeStr := "-"
		if size, err := c.Size(id); err == nil && size > 0 {
			sizeStr = fmt.Sprintf("%d", size)
		}

		decl, err := c.Declaration(id)
		if err != nil || decl == "" {
			decl = "<anonymous>"
		}

		fmt.Fprintf(output, "0x%08X   %-12s %-8s %s\n", uint32(id), kind, sizeStr, decl)
		count++
		if typesLimit > 0 && count >= typesLimit {
			break
		}
	}

	fmt.Fprintf(output, "\nTotal: %d types\n", count)
	return nil
}

func parseKind(s string) ctf.Kind {
	for k := ctf.KindInteger; k <= ctf.KindSlice; k++ {
		if k.String() == s {
			return k
		}
	}
	return ctf.KindUnknown
}
