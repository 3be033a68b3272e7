package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommands(t *testing.T) {
	c := NewCommands()

	assert.True(t, c.Add("test.battery.start"))
	assert.True(t, c.Add("load.off"))
	assert.True(t, c.Add("beeper.disable"))
	assert.False(t, c.Add("LOAD.OFF"), "duplicate in another case")

	assert.Equal(t, []string{"beeper.disable", "load.off", "test.battery.start"}, c.List())
	assert.True(t, c.Has("Test.Battery.Start"))

	assert.True(t, c.Delete("Load.Off"))
	assert.False(t, c.Delete("load.off"))
	assert.False(t, c.Has("load.off"))
	assert.Equal(t, 2, c.Len())

	list := c.List()
	list[0] = "mutated"
	assert.Equal(t, "beeper.disable", c.List()[0], "List returns a copy")

	c.Reset()
	assert.Zero(t, c.Len())
	assert.True(t, c.Add("load.on"))
}
