package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// historyFile returns the path to the console's readline history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".vectrald_history")
}

// RunConsole starts an interactive liner-backed session. commandsFactory is
// called once per line to build a fresh set of Commands, since a pflag
// FlagSet's Changed/value state is cumulative across repeated Parse calls
// and must not leak between console invocations of the same command name.
func RunConsole(ctx context.Context, ioHandle *IO, commandsFactory func() []*Command) error {
	names := make([]string, 0)
	for _, cmd := range commandsFactory() {
		names = append(names, cmd.Name())
	}

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var completions []string
		for _, name := range names {
			if strings.HasPrefix(name, prefix) {
				completions = append(completions, name)
			}
		}
		return completions
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	ioHandle.Println("vectral console - type 'help' for commands, 'exit' to quit")

	for {
		input, err := line.Prompt("vectral> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				ioHandle.Println()
				break
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		fields := strings.Fields(input)
		name, args := fields[0], fields[1:]

		commands := commandsFactory()

		switch name {
		case "exit", "quit":
			saveHistory(line)
			return nil
		case "help":
			printConsoleHelp(ioHandle, commands)
			continue
		}

		commandMap := make(map[string]*Command, len(commands))
		for _, cmd := range commands {
			commandMap[cmd.Name()] = cmd
		}

		cmd, ok := commandMap[name]
		if !ok {
			ioHandle.ErrPrintln("unknown command:", name, "(type 'help' for commands)")
			continue
		}

		cmd.Run(ctx, ioHandle, args)
	}

	saveHistory(line)
	return nil
}

func saveHistory(line *liner.State) {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}
}

func printConsoleHelp(ioHandle *IO, commands []*Command) {
	ioHandle.Println("Commands:")
	for _, cmd := range commands {
		ioHandle.Println(cmd.HelpLine())
	}
	ioHandle.Println("  help                         Show this help")
	ioHandle.Println("  exit / quit                  Exit")
}
