package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type checkerMock struct{ mock.Mock }

func (m *checkerMock) ValidateMemory(ctx context.Context, recalled, actual []string) (bool, error) {
	args := m.Called(ctx, recalled, actual)
	return args.Bool(0), args.Error(1)
}

func TestValidateFirstTurnPasses(t *testing.T) {
	m := &checkerMock{}
	ok, err := NewValidator(m).Validate(context.Background(), []string{"anything"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	m.AssertNotCalled(t, "ValidateMemory", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateCountMismatchFailsLocally(t *testing.T) {
	m := &checkerMock{}
	v := NewValidator(m)

	ok, err := v.Validate(context.Background(), []string{"tent"}, []string{"tent", "map"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Validate(context.Background(), []string{"tent", "map", "hat"}, []string{"tent", "map"})
	require.NoError(t, err)
	assert.False(t, ok)

	m.AssertNotCalled(t, "ValidateMemory", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateAsksChecker(t *testing.T) {
	m := &checkerMock{}
	recalled, actual := []string{"tnet", "maps"}, []string{"tent", "map"}
	m.On("ValidateMemory", mock.Anything, recalled, actual).Return(true, nil).Once()

	ok, err := NewValidator(m).Validate(context.Background(), recalled, actual)
	require.NoError(t, err)
	assert.True(t, ok)
	m.AssertExpectations(t)
}

func TestValidateCheckerError(t *testing.T) {
	m := &checkerMock{}
	m.On("ValidateMemory", mock.Anything, mock.Anything, mock.Anything).Return(false, errBoom)

	ok, err := NewValidator(m).Validate(context.Background(), []string{"tent"}, []string{"tent"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrValidationUnavailable)
	assert.ErrorIs(t, err, errBoom)
}

func TestParseRecalled(t *testing.T) {
	assert.Equal(t, []string{"a tent", "a map"}, ParseRecalled("  a tent \n\n\t\na map\n"))
	assert.Empty(t, ParseRecalled(""))
	assert.NotNil(t, ParseRecalled("   "))
}
