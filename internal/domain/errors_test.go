package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Router.Route", ErrNoAgentAvailable, "type maintenance")
	want := "Router.Route: type maintenance: no agent available"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Registry.AllAgents", ErrRegistryNotInitialized, "")
	want := "Registry.AllAgents: agent registry not initialized"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Store.GetByID", ErrAgentConfigNotFound, "cfg-1")
	if !errors.Is(err, ErrAgentConfigNotFound) {
		t.Error("errors.Is should match ErrAgentConfigNotFound")
	}
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Store.GetByID", de.Op)
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeNoAgentAvailable, ErrorCodeOf(ErrNoAgentAvailable))
	assert.Equal(t, CodeGenerationFailed, ErrorCodeOf(ErrGenerationFailed))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
}

func TestErrorCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("classify: %w", NewDomainError("Generator.Generate", ErrGenerationFailed, "timeout"))
	assert.Equal(t, CodeGenerationFailed, ErrorCodeOf(err))
}

func TestErrorCodeOf_MostSpecificWins(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrGenerationFailed, ErrRateLimit)
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(err))
}

func TestErrorCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("boom")))
}

func TestDomainErrorCode(t *testing.T) {
	err := NewDomainError("Coordinator.resolveConfig", ErrAgentConfigNotFound, "cfg-x")
	assert.Equal(t, CodeAgentConfigNotFound, err.Code())
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	err := WrapOp("store.add", ErrPersistence)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "store.add: persistence operation failed", err.Error())
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("x: %w", ErrRateLimit)))
	assert.True(t, IsRetryableError(ErrUpstream))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
}
