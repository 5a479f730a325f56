package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePort(t *testing.T) {
	port, err := parsePort("6000")
	require.NoError(t, err)
	assert.Equal(t, 6000, port)

	for _, s := range []string{"foo", "0", "-1", "65536"} {
		_, err := parsePort(s)
		assert.Error(t, err, s)
	}
}

func TestCommand(t *testing.T) {
	cmd := NewCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{
		"publish", "unpublish", "lookup", "subscribe", "unsubscribe",
	}, names)
}
