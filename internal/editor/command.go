package editor

import (
	"errors"
	"fmt"
	"strings"
)

// Command is a formatting command applied to the current selection.
type Command string

const (
	Bold                Command = "bold"
	Italic              Command = "italic"
	Underline           Command = "underline"
	InsertUnorderedList Command = "insertUnorderedList"
	InsertOrderedList   Command = "insertOrderedList"
)

// ErrUnknownCommand is returned by ParseCommand for unrecognized names.
var ErrUnknownCommand = errors.New("unknown formatting command")

// Commands lists every supported command in toolbar order.
func Commands() []Command {
	return []Command{Bold, Italic, Underline, InsertUnorderedList, InsertOrderedList}
}

// ParseCommand resolves a command name, ignoring case.
func ParseCommand(name string) (Command, error) {
	for _, c := range Commands() {
		if strings.EqualFold(string(c), strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}
