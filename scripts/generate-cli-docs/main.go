// Package main generates a single markdown reference for every slipway
// command from the assembled cobra tree.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/slipway/slipway/cmd/slipway/cmd"
)

func main() {
	var outFile string
	flag.StringVar(&outFile, "out", "./docs/CLI.md", "output file for the generated markdown")
	flag.Parse()

	if err := generate(outFile); err != nil {
		log.Fatalf("error: %s", err)
	}
	log.Printf("generated CLI documentation in %s", outFile)
}

func generate(outFile string) error {
	if err := os.MkdirAll(filepath.Dir(outFile), 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# slipway CLI\n\n")
	buf.WriteString("Every command with its flags and defaults. Generated; do not edit by hand.\n\n")

	root := cmd.RootCmd()
	root.DisableAutoGenTag = true
	if err := writeCommand(&buf, root, 2); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Clean(outFile), buf.Bytes(), 0o644); err != nil { //nolint:gosec // generated docs are public
		return fmt.Errorf("writing %s: %w", outFile, err)
	}
	return nil
}

func writeCommand(buf *bytes.Buffer, c *cobra.Command, level int) error {
	if !c.IsAvailableCommand() || c.IsAdditionalHelpTopicCommand() {
		return nil
	}

	fmt.Fprintf(buf, "%s %s\n\n", strings.Repeat("#", level), c.CommandPath())
	if c.Short != "" {
		fmt.Fprintf(buf, "%s\n\n", c.Short)
	}
	if c.Long != "" && c.Long != c.Short {
		fmt.Fprintf(buf, "%s\n\n", c.Long)
	}

	var md bytes.Buffer
	if err := doc.GenMarkdown(c, &md); err != nil {
		return fmt.Errorf("generating markdown for %s: %w", c.CommandPath(), err)
	}
	buf.WriteString(optionsSection(md.String()))

	children := make([]*cobra.Command, len(c.Commands()))
	copy(children, c.Commands())
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })
	for _, child := range children {
		if err := writeCommand(buf, child, level+1); err != nil {
			return err
		}
	}
	return nil
}

// optionsSection extracts the flag tables from cobra's generated markdown,
// dropping the synopsis and see-also noise around them.
func optionsSection(markdown string) string {
	start := strings.Index(markdown, "### Options")
	if start < 0 {
		return ""
	}
	section := markdown[start:]
	if end := strings.Index(section, "### SEE ALSO"); end > 0 {
		section = section[:end]
	}
	return strings.TrimRight(section, "\n") + "\n\n"
}
