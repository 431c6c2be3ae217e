package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeValuesAreStable(t *testing.T) {
	// Codes travel on the wire; renumbering breaks deployed clients.
	assert.EqualValues(t, 0, StatusOK)
	assert.EqualValues(t, 1, StatusMalformed)
	assert.EqualValues(t, 5, StatusInvalidOffset)
	assert.EqualValues(t, 6, StatusNotFound)
	assert.EqualValues(t, 9, StatusNotOpen)
}

func TestStatusCodeClasses(t *testing.T) {
	tests := []struct {
		code     StatusCode
		protocol bool
		state    bool
	}{
		{StatusOK, false, false},
		{StatusMalformed, true, false},
		{StatusUnknownOperation, true, false},
		{StatusInvalidMode, true, false},
		{StatusInvalidCount, true, false},
		{StatusInvalidOffset, true, false},
		{StatusNotFound, false, true},
		{StatusLockConflict, false, true},
		{StatusAlreadyOpen, false, true},
		{StatusNotOpen, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.protocol, tt.code.IsProtocol())
			assert.Equal(t, tt.state, tt.code.IsState())
		})
	}
}

func TestStatusCodeString(t *testing.T) {
	assert.Equal(t, "LockConflict", StatusLockConflict.String())
	assert.Equal(t, "Unknown(42)", StatusCode(42).String())
}

func TestStatusError(t *testing.T) {
	err := NewNotFoundError("notes.txt")
	assert.Equal(t, "NotFound: file not found (file: notes.txt)", err.Error())

	assert.Equal(t, "InvalidMode: invalid mode \"append\"", NewInvalidModeError("append").Error())
}

func TestStatusOf(t *testing.T) {
	code, ok := StatusOf(nil)
	assert.True(t, ok)
	assert.Equal(t, StatusOK, code)

	code, ok = StatusOf(fmt.Errorf("wrapped: %w", NewNotOpenError("f", "read")))
	assert.True(t, ok)
	assert.Equal(t, StatusNotOpen, code)

	_, ok = StatusOf(fmt.Errorf("disk on fire"))
	assert.False(t, ok)
}

func TestFatalError(t *testing.T) {
	cause := fmt.Errorf("disk gone")
	err := NewResourceError("write", cause)

	assert.Equal(t, KindResource, err.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "resource")
	assert.Contains(t, err.Error(), "write")
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsFatal(NewNotFoundError("f")))

	assert.Equal(t, "inconsistent", NewInconsistentError("close", cause).Kind.String())
}
