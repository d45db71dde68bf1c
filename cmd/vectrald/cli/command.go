package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags. The FlagSet name is not used -
	// command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "vectrald" in help.
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help. If empty, Short
	// is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-28s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "vectrald <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: vectrald", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns an exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	return 0
}

// ChangedFlagNames returns the json-tag-style names (via nameMap) of every
// flag the user actually passed, for layering CLI overrides onto a loaded
// Config.
func ChangedFlagNames(flags *flag.FlagSet, nameMap map[string]string) map[string]bool {
	changed := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) {
		if tag, ok := nameMap[f.Name]; ok {
			changed[tag] = true
		}
	})
	return changed
}
