package clicommand

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("something went sideways")))
	assert.Equal(t, 2, ExitCode(ConfigError(errors.New("bad flag"))))
	assert.Equal(t, 7, ExitCode(Status(7)))
	assert.Equal(t, 130, ExitCode(Status(130)))
}

func TestExitCodeUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("starting up: %w", ConfigError(errors.New("no namespace")))
	assert.Equal(t, 2, ExitCode(wrapped))
}

func TestConfigErrorUnwrap(t *testing.T) {
	inner := errors.New("no such signal")
	err := ConfigError(inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "no such signal", err.Error())
}
