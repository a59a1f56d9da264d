package redex

import "github.com/riftctl/redex/resp"

// Command is the Go shape of spec.md §3's "Command record": a command
// name, its arguments, and an optional reply-transform applied by the
// RESP reader to the terminal scalar value.
type Command struct {
	Name  string
	Args  []interface{}
	Parse resp.ParseFunc
}

// NewCommand builds a Command with no reply transform.
func NewCommand(name string, args ...interface{}) Command {
	return Command{Name: name, Args: args}
}

// WithParse attaches a reply-transform to a copy of the command.
func (c Command) WithParse(parse resp.ParseFunc) Command {
	c.Parse = parse
	return c
}
