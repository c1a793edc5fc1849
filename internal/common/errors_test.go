package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := fmt.Errorf("refresh latest: %w", &FetchError{
		Kind:       FetchTransient,
		View:       "latest",
		StatusCode: 503,
		Attempts:   3,
		Err:        cause,
	})

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FetchTransient, fe.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "3 attempt(s)")
}

func TestParseError_EmptyTable(t *testing.T) {
	assert.True(t, (&ParseError{Kind: NoRecognizableData, TableFound: true}).EmptyTable())
	assert.False(t, (&ParseError{Kind: NoRecognizableData, TableFound: true, Rows: 4, Skipped: 4}).EmptyTable())
	assert.False(t, (&ParseError{Kind: NoRecognizableData}).EmptyTable())
}

func TestDataUnavailable(t *testing.T) {
	cause := &FetchError{Kind: FetchUnreachable, View: "top30", Attempts: 1}
	err := fmt.Errorf("top30: %w", &DataUnavailableError{Reason: ColdStart, View: "top30", Err: cause})

	var du *DataUnavailableError
	assert.True(t, errors.As(err, &du))
	assert.Equal(t, ColdStart, du.Reason)

	var fe *FetchError
	assert.True(t, errors.As(err, &fe), "cause stays reachable through the chain")
}
