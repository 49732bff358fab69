package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	cause := errors.New("exit status 255")
	err := fmt.Errorf("install app: %w", &TransportError{
		Command:  []string{"rsync", "-a", "src/", "dst/"},
		ExitCode: 255,
		Err:      cause,
	})

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)

	var transport *TransportError
	if assert.ErrorAs(t, err, &transport) {
		assert.Equal(t, 255, transport.ExitCode)
	}
	assert.Contains(t, err.Error(), `"rsync -a src/ dst/" exited with 255`)
}

func TestHelpersWrapSentinels(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, Mismatch("phone", "auto-ios-aarch64"), ErrCompatibilityMismatch)
	assert.ErrorIs(t, Unsupported("ssh device", "debug"), ErrUnsupported)
	assert.NotErrorIs(t, Unsupported("ssh device", "debug"), ErrTransport)
}
