package response

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelope(t *testing.T) {
	ok := Created(map[string]string{"id": "1"})
	assert.Equal(t, "success", ok.Status)
	assert.Equal(t, http.StatusCreated, ok.StatusCode)
	assert.Empty(t, ok.Error)

	fail := Error(http.StatusConflict, "")
	assert.Equal(t, "error", fail.Status)
	assert.Equal(t, "Conflict", fail.Error)
	assert.Nil(t, fail.Data)

	assert.Equal(t, "boom", Error(http.StatusInternalServerError, "boom").Error)
}
