package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validation("x"), http.StatusBadRequest},
		{apperr.Violation("x"), http.StatusBadRequest},
		{apperr.Unauthenticated("x"), http.StatusUnauthorized},
		{apperr.Forbidden("x"), http.StatusForbidden},
		{apperr.NotFound("x"), http.StatusNotFound},
		{apperr.MethodNotAllowed("x"), http.StatusMethodNotAllowed},
		{apperr.Conflict("x"), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", apperr.Conflict("x")), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestParseInstant(t *testing.T) {
	lagos, err := time.LoadLocation("Africa/Lagos")
	require.NoError(t, err)

	got, err := parseInstant("scheduled_at", "2026-10-19T09:30:00", lagos)
	require.NoError(t, err)
	assert.Equal(t, "Africa/Lagos", got.Location().String())
	assert.Equal(t, 9, got.Hour())

	got, err = parseInstant("scheduled_at", "2026-10-19 09:30", lagos)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)))

	got, err = parseInstant("scheduled_at", "2026-10-19T09:30:00Z", lagos)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)))

	_, err = parseInstant("scheduled_at", "", lagos)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = parseInstant("scheduled_at", "next monday", lagos)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
