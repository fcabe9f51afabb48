package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/ctf-go/ctf"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <ctf-file> <query>",
	Short: "Look up a type by name or identifier",
	Long: `Look up a type in a container file.

Query can be:
  - Type name: lookup file.ctf "struct point"
  - Pointer name: lookup file.ctf "int *"
  - Type ID: lookup file.ctf id:0x1`,
	Args: cobra.ExactArgs(2),
	RunE: runLookup,
}

func runLookup(cmd *cobra.Command, args []string) error {
	path := args[0]
	query := args[1]

	c, a, err := openContainer(path)
	if err != nil {
		return err
	}
	defer a.Close()

	var id ctf.TypeID
	if rest, ok := strings.CutPrefix(query, "id:"); ok {
		raw, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(rest, "0x"), "0X"), 16, 32)
		if err != nil {
			return fmt.Errorf("invalid type ID: %s", rest)
		}
		id = ctf.TypeID(raw)
	} else {
		id, err = c.LookupTypeByName(query)
		if err != nil {
			return fmt.Errorf("type not found: %w", err)
		}
	}

	return printTypeDetail(c, id)
}

func printTypeDetail(c *ctf.Container, id ctf.TypeID) error {
	kind, err := c.Kind(id)
	if err != nil {
		return fmt.Errorf("type not found: %w", err)
	}

	fmt.Fprintf(output, "Type:\n")
	fmt.Fprintf(output, "  ID: 0x%08X\n", uint32(id))
	fmt.Fprintf(output, "  Kind: %s\n", kind)
	if name, err := c.TypeName(id); err == nil && name != "" {
		fmt.Fprintf(output, "  Name: %s\n", name)
	}
	if decl, err := c.Declaration(id); err == nil {
		fmt.Fprintf(output, "  Declaration: %s\n", decl)
	}
	if size, err := c.Size(id); err == nil && size > 0 {
		fmt.Fprintf(output, "  Size: %d\n", size)
	}

	switch kind {
	case ctf.KindInteger, ctf.KindFloat:
		if enc, err := c.Encoding(id); err == nil {
			fmt.Fprintf(output, "  Encoding: format=0x%X offset=%d bits=%d\n", enc.Format, enc.Offset, enc.Bits)
		}
	case ctf.KindPointer, ctf.KindTypedef, ctf.KindVolatile, ctf.KindConst, ctf.KindRestrict:
		if ref, err := c.Reference(id); err == nil {
			fmt.Fprintf(output, "  Referent: 0x%08X\n", uint32(ref))
		}
	case ctf.KindArray:
		if ai, err := c.ArrayInfo(id); err == nil {
			fmt.Fprintf(output, "  ElementType: 0x%08X\n", uint32(ai.Contents))
			fmt.Fprintf(output, "  Count: %d\n", ai.Count)
		}
	case ctf.KindSlice:
		if si, err := c.SliceInfo(id); err == nil {
			fmt.Fprintf(output, "  Underlying: 0x%08X\n", uint32(si.Type))
			fmt.Fprintf(output, "  Window: offset=%d bits=%d\n", si.Offset, si.Bits)
		}
	case ctf.KindFunction:
		if fi, err := c.FunctionInfo(id); err == nil {
			fmt.Fprintf(output, "  ReturnType: 0x%08X\n", uint32(fi.Return))
			fmt.Fprintf(output, "  Arguments: %d\n", len(fi.Args))
		}
	case ctf.KindStruct, ctf.KindUnion:
		members, err := c.Members(id)
		if err == nil {
			fmt.Fprintf(output, "  Members: %d\n", len(members))
			for _, m := range members {
				mdecl, _ := c.Declaration(m.Type)
				fmt.Fprintf(output, "    %-20s %-24s bit offset %d\n", m.Name, mdecl, m.Offset)
			}
		}
	case ctf.KindEnum:
		enums, err := c.Enumerators(id)
		if err == nil {
			fmt.Fprintf(output, "  Enumerators: %d\n", len(enums))
			for _, e := range enums {
				fmt.Fprintf(output, "    %-20s = %d\n", e.Name, e.Value)
			}
		}
	case ctf.KindForward:
		if hint, err := c.ForwardKind(id); err == nil {
			fmt.Fprintf(output, "  Hint: %s\n", hint)
		}
	}

	fmt.Fprintln(output)
	return nil
}
