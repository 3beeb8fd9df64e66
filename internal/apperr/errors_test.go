package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("sign submission: %w", Conflict("submission is already signed"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "submission is already signed", PublicMessage(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Unauthorized("who"), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{Unavailable(errors.New("dial"), "db down"), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestFromDB(t *testing.T) {
	assert.NoError(t, FromDB(nil, "user"))
	assert.ErrorIs(t, FromDB(gorm.ErrRecordNotFound, "user"), ErrNotFound)
	assert.ErrorIs(t, FromDB(gorm.ErrDuplicatedKey, "user"), ErrConflict)

	other := errors.New("connection reset")
	assert.Equal(t, other, FromDB(other, "user"))
}

func TestPublicMessageHidesInternal(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(errors.New("pq: relation missing")))
	assert.Equal(t, "db down: dial", Unavailable(errors.New("dial"), "db down").Error())
}
