package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cilforge/internal/metadata"
	"cilforge/internal/pe"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.dll>",
	Short: "Print the CLI header and metadata tables of an assembly",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	ins, err := pe.Inspect(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return printInspection(cmd.OutOrStdout(), ins)
}

func printInspection(out io.Writer, ins *pe.Inspection) error {
	md := ins.Metadata
	lines := []string{
		fmt.Sprintf("machine      %#04x", ins.Machine),
		fmt.Sprintf("image base   %#08x", ins.ImageBase),
		fmt.Sprintf("sections     %v", ins.Sections),
		fmt.Sprintf("runtime      %d.%d", ins.RuntimeMaj, ins.RuntimeMin),
		fmt.Sprintf("flags        %#08x", ins.Flags),
		fmt.Sprintf("entry point  %s", ins.EntryPoint),
		fmt.Sprintf("metadata     %s", md.Version),
	}
	if len(md.Assembly) > 0 {
		a := md.Assembly[0]
		lines = append(lines, fmt.Sprintf("assembly     %s %d.%d.%d.%d", md.String(a.Name),
			a.Version.Major, a.Version.Minor, a.Version.Build, a.Version.Revision))
	}
	lines = append(lines, "tables:")
	for _, t := range metadata.Tables() {
		if n := md.RowCount(t); n > 0 {
			lines = append(lines, fmt.Sprintf("  %-14s %d", t, n))
		}
	}
	lines = append(lines, "methods:")
	for i := range md.MethodDef {
		row := uint32(i + 1)
		mark := ""
		if ins.EntryPoint == metadata.MakeToken(metadata.TableMethodDef, row) {
			mark = "  (entry)"
		}
		lines = append(lines, fmt.Sprintf("  %3d %-24s rva %#06x%s", row, md.MethodName(row), md.MethodDef[i].RVA, mark))
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(out, l); err != nil {
			return err
		}
	}
	return nil
}
