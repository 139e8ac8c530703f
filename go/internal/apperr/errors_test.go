package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	wrapped := fmt.Errorf("advance level: %w", Wrap(ErrInvalidLevel, "target %d", 3))

	assert.True(t, errors.Is(wrapped, ErrInvalidLevel))
	assert.Equal(t, "invalid_level", Code(wrapped))
	assert.Equal(t, "out_of_sequence", Code(ErrOutOfSequence))
	assert.Equal(t, "internal", Code(errors.New("boom")))
	assert.Contains(t, wrapped.Error(), "target 3")
}
