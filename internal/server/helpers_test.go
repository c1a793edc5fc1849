package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/bobmcallan/dsefeed/internal/common"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: 2024-02-01 > 2024-01-01", common.ErrInvalidRange), http.StatusBadRequest},
		{&common.DataUnavailableError{Reason: common.ColdStart}, http.StatusServiceUnavailable},
		{&common.DataUnavailableError{Reason: common.Timeout}, http.StatusGatewayTimeout},
		{fmt.Errorf("wrapped: %w", &common.FetchError{Kind: common.FetchRejected, StatusCode: 404}), http.StatusBadGateway},
		{&common.ParseError{Kind: common.NoRecognizableData}, http.StatusInternalServerError},
		{&common.DataUnavailableError{Reason: common.ColdStart, Err: &common.ParseError{Kind: common.NoRecognizableData}}, http.StatusServiceUnavailable},
		{fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
