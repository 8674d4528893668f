package errors_test

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Operation timed out", f.New(errors.ErrTimeout).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrTimeout, "custom").Error())
	assert.Equal(t, "Operation timed out: 5s", f.WithData(errors.ErrTimeout, "5s").Error())
	assert.Equal(t, "Operation canceled: EOF", f.Wrap(errors.ErrCanceled, io.EOF).Error())
}

func TestIsCodeWalksChain(t *testing.T) {
	f := errors.New()
	inner := f.Wrap(errors.ErrTimeout, io.EOF)
	outer := f.Wrap(errors.ErrInternal, fmt.Errorf("step 3: %w", inner))

	assert.True(t, errors.IsCode(outer, errors.ErrInternal))
	assert.True(t, errors.IsCode(outer, errors.ErrTimeout))
	assert.False(t, errors.IsCode(outer, errors.ErrCanceled))
	assert.False(t, errors.IsCode(nil, errors.ErrTimeout))
	assert.True(t, stderrors.Is(outer, io.EOF))
}

func TestSentinelMatchesByCode(t *testing.T) {
	f := errors.New()
	err := f.WithData(errors.ErrAlreadyRunning, "1234")

	assert.True(t, stderrors.Is(err, f.New(errors.ErrAlreadyRunning)))
	assert.False(t, stderrors.Is(err, f.New(errors.ErrInternal)))
}

func TestCodeOf(t *testing.T) {
	code, ok := errors.CodeOf(fmt.Errorf("wrapped: %w", errors.New().New(errors.ErrInvalidArgument)))
	assert.True(t, ok)
	assert.Equal(t, errors.ErrInvalidArgument, code)

	_, ok = errors.CodeOf(io.EOF)
	assert.False(t, ok)
}

func TestWithDataKeepsMessageAndCause(t *testing.T) {
	err := errors.New().Wrap(errors.ErrInternal, io.EOF).WithMessage("disk").WithData(7)

	assert.Equal(t, "disk: 7", err.Error())
	assert.Equal(t, 7, err.GetData())
	assert.ErrorIs(t, err, io.EOF)
}
