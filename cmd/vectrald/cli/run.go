package cli

import (
	"context"

	"github.com/vectral/vectral/internal/vectordb"
)

// AllCommands returns every one-shot subcommand in display order, bound to
// db. Called fresh per dispatch so each command's FlagSet starts clean.
func AllCommands(db *vectordb.DB) []*Command {
	return []*Command{
		CreateCollectionCmd(db),
		DeleteCollectionCmd(db),
		UpsertCmd(db),
		GetCmd(db),
		DeletePointCmd(db),
		ListCmd(db),
		SearchCmd(db),
		StatsCmd(db),
	}
}

// Dispatch runs the named command against args, or starts the interactive
// console when name is "console".
func Dispatch(ctx context.Context, ioHandle *IO, db *vectordb.DB, name string, args []string) int {
	if name == "console" {
		if err := RunConsole(ctx, ioHandle, func() []*Command { return AllCommands(db) }); err != nil {
			ioHandle.ErrPrintln("error:", err)
			return 1
		}
		return 0
	}

	commands := AllCommands(db)

	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd.Run(ctx, ioHandle, args)
		}
	}

	ioHandle.ErrPrintln("error: unknown command:", name)
	PrintUsage(ioHandle, commands)

	return 1
}

// PrintUsage prints the top-level command listing.
func PrintUsage(ioHandle *IO, commands []*Command) {
	ioHandle.Println("vectrald - in-memory vector database server and CLI")
	ioHandle.Println()
	ioHandle.Println("Usage: vectrald [global flags] <command> [args]")
	ioHandle.Println()
	ioHandle.Println("Commands:")

	for _, cmd := range commands {
		ioHandle.Println(cmd.HelpLine())
	}

	ioHandle.Println("  console                      Start an interactive session")
}
