package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cilforge/internal/metadata"
	"cilforge/internal/pe"
	"cilforge/internal/version"
)

// versionRecord is the --format json output.
type versionRecord struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit,omitempty"`
	Built     string `json:"build_date,omitempty"`
	Target    string `json:"target,omitempty"`
	Metadata  string `json:"metadata_version,omitempty"`
	CLIHeader string `json:"cli_runtime,omitempty"`
}

var versionFlags struct {
	hash, date, full bool
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the cilforge version and the runtime it targets",
	Long: `Show the cilforge version. --full adds the commit, the build date and
the .NET target of written images; --format json prints the same as a record.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	f := versionCmd.Flags()
	f.BoolVar(&versionFlags.hash, "hash", false, "include git commit hash")
	f.BoolVar(&versionFlags.date, "date", false, "include build timestamp")
	f.BoolVar(&versionFlags.full, "full", false, "include everything, target runtime too")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	flags := cmd.Root().PersistentFlags()
	format, err := flags.GetString("format")
	if err != nil {
		return err
	}
	colorMode, err := flags.GetString("color")
	if err != nil {
		return err
	}

	rec := versionRecord{Tool: "cilforge", Version: version.Plain()}
	if versionFlags.hash || versionFlags.full {
		rec.Commit = orUnknown(version.GitCommit)
	}
	if versionFlags.date || versionFlags.full {
		rec.Built = orUnknown(version.BuildDate)
	}
	if versionFlags.full {
		rec.Target = pe.Target()
		rec.Metadata = metadata.Version()
		rec.CLIHeader = fmt.Sprintf("%d.%d", pe.RuntimeMajor, pe.RuntimeMinor)
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "pretty":
		colored := colorMode == "on" || (colorMode == "auto" && isTerminal(os.Stdout))
		return printVersion(out, rec, colored)
	}
	return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
}

func printVersion(out io.Writer, rec versionRecord, colored bool) error {
	line := version.Long(colored)
	if rec.Commit == "" && rec.Built == "" {
		v := rec.Version
		if colored {
			v = version.Colored()
		}
		line = "cilforge " + v
	}
	if _, err := fmt.Fprintln(out, line); err != nil {
		return err
	}
	if rec.Target == "" {
		return nil
	}
	_, err := fmt.Fprintf(out, "target   %s\nmetadata %s, CLI header %s\n", rec.Target, rec.Metadata, rec.CLIHeader)
	return err
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
