package state

import (
	"slices"
	"strings"
)

// Commands is the set of instant commands a device supports, kept sorted
// by case-folded name.
type Commands struct {
	names []string
}

// NewCommands returns an empty command set.
func NewCommands() *Commands {
	return &Commands{}
}

func (c *Commands) search(name string) (int, bool) {
	return slices.BinarySearchFunc(c.names, name, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
}

// Add inserts name. It returns false if the command is already present in
// any casing.
func (c *Commands) Add(name string) bool {
	i, found := c.search(name)
	if found {
		return false
	}
	c.names = slices.Insert(c.names, i, name)
	return true
}

// Delete removes name. It returns false if the command was not present.
func (c *Commands) Delete(name string) bool {
	i, found := c.search(name)
	if !found {
		return false
	}
	c.names = slices.Delete(c.names, i, i+1)
	return true
}

// Has reports whether name is present.
func (c *Commands) Has(name string) bool {
	_, found := c.search(name)
	return found
}

// List returns a copy of the command names in sorted order.
func (c *Commands) List() []string {
	return slices.Clone(c.names)
}

// Len returns the number of commands.
func (c *Commands) Len() int {
	return len(c.names)
}

// Reset removes every command.
func (c *Commands) Reset() {
	c.names = c.names[:0]
}
