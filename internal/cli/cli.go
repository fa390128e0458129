// Package cli parses the ledlink command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandServe   Command = "serve"
	CommandPress   Command = "press"
	CommandStatus  Command = "status"
	CommandPeer    Command = "peer"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// commands is listed in help order.
var commands = []struct {
	name    Command
	summary string
}{
	{CommandServe, "Run the LED command server and wait for a client"},
	{CommandPress, "Simulate a button press on a running server (soft backend)"},
	{CommandStatus, "Print connection and LED state of a running server"},
	{CommandPeer, "Run the reference client that obeys and acknowledges commands"},
	{CommandDoctor, "Run configuration and environment checks"},
	{CommandVersion, "Print version information"},
	{CommandHelp, "Show this help"},
}

func known(name string) (Command, bool) {
	for _, c := range commands {
		if string(c.name) == name {
			return c.name, true
		}
	}
	return "", false
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
}

// Parse accepts global flags followed by at most one trailing command.
// No arguments means help.
func Parse(args []string) (Parsed, error) {
	out := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			cmd, ok := known(arg)
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			if rest := args[i+1:]; len(rest) > 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q: %s", arg, strings.Join(rest, " "))
			}
			out.Command, out.ShowHelp = cmd, cmd == CommandHelp
			break
		}

		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "-h", "--help":
			out.Command, out.ShowHelp = CommandHelp, true
		case "--version":
			out.Command, out.ShowHelp = CommandVersion, false
		case "--config":
			if !hasValue {
				if i+1 >= len(args) {
					return Parsed{}, errors.New("--config requires a path")
				}
				i++
				value = args[i]
			}
			if value == "" {
				return Parsed{}, errors.New("--config requires a path")
			}
			out.ConfigPath = value
		default:
			return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	return out, nil
}

func HelpText(binaryName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage:\n  %s [--config PATH] <command>\n\nCommands:\n", binaryName)
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-9s %s\n", c.name, c.summary)
	}
	b.WriteString(`
Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/ledlink/config.jsonc)
  -h, --help      Show help
  --version       Show version
`)
	return b.String()
}
