// Package relay maps logical relay-channel actions to the single-byte
// codes the board understands and dispatches them over a session.
//
// The byte mapping is configuration, not protocol logic: boards ship with
// the conventional uppercase-on/lowercase-off table below, but a YAML file
// can replace it without touching code.
package relay

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Command pairs a channel label with its on and off code bytes.
type Command struct {
	Label string
	On    byte
	Off   byte
}

// Table is an immutable set of commands, preserving declaration order for
// display.
type Table struct {
	commands []Command
	byLabel  map[string]Command
}

// NewTable validates and indexes commands. Labels must be unique and
// non-empty; code bytes must be unique across the whole table so no two
// actions are indistinguishable on the wire.
func NewTable(commands []Command) (*Table, error) {
	if len(commands) == 0 {
		return nil, errors.New("relay: empty command table")
	}
	byLabel := make(map[string]Command, len(commands))
	usedCodes := make(map[byte]string, 2*len(commands))
	for _, cmd := range commands {
		if cmd.Label == "" {
			return nil, errors.New("relay: command with empty label")
		}
		if _, ok := byLabel[cmd.Label]; ok {
			return nil, fmt.Errorf("relay: duplicate label %q", cmd.Label)
		}
		if cmd.On == cmd.Off {
			return nil, fmt.Errorf("relay: %q uses the same code for on and off", cmd.Label)
		}
		for _, code := range []byte{cmd.On, cmd.Off} {
			if other, ok := usedCodes[code]; ok {
				return nil, fmt.Errorf("relay: code %q shared by %q and %q", code, other, cmd.Label)
			}
			usedCodes[code] = cmd.Label
		}
		byLabel[cmd.Label] = cmd
	}
	return &Table{commands: commands, byLabel: byLabel}, nil
}

// DefaultTable is the conventional four-channel mapping: relay1..relay4
// switch on with 'A'..'D' and off with 'a'..'d'.
func DefaultTable() *Table {
	commands := make([]Command, 4)
	for i := range commands {
		commands[i] = Command{
			Label: fmt.Sprintf("relay%d", i+1),
			On:    'A' + byte(i),
			Off:   'a' + byte(i),
		}
	}
	table, err := NewTable(commands)
	if err != nil {
		panic(err)
	}
	return table
}

// Lookup finds a command by label.
func (t *Table) Lookup(label string) (Command, bool) {
	cmd, ok := t.byLabel[label]
	return cmd, ok
}

// Commands returns the table in declaration order. The caller must not
// modify the returned slice.
func (t *Table) Commands() []Command {
	return t.commands
}

type commandSpec struct {
	Label string `yaml:"label"`
	On    string `yaml:"on"`
	Off   string `yaml:"off"`
}

type tableFile struct {
	Commands []commandSpec `yaml:"commands"`
}

// LoadTable reads a YAML command table:
//
//	commands:
//	  - label: relay1
//	    on: "A"
//	    off: "a"
//
// Codes must be exactly one byte.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay: read command table: %w", err)
	}
	return ParseTable(raw)
}

// ParseTable parses the YAML command-table format accepted by LoadTable.
func ParseTable(raw []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("relay: parse command table: %w", err)
	}
	commands := make([]Command, 0, len(file.Commands))
	for _, entry := range file.Commands {
		on, err := codeByte(entry.Label, "on", entry.On)
		if err != nil {
			return nil, err
		}
		off, err := codeByte(entry.Label, "off", entry.Off)
		if err != nil {
			return nil, err
		}
		commands = append(commands, Command{Label: entry.Label, On: on, Off: off})
	}
	return NewTable(commands)
}

func codeByte(label, field, value string) (byte, error) {
	if len(value) != 1 {
		return 0, fmt.Errorf("relay: %s code for %q must be a single byte, got %q", field, label, value)
	}
	return value[0], nil
}
