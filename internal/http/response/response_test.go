package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

func TestStatusFor(t *testing.T) {
	verr := &domain.ValidationError{}
	verr.Add("page", "Page must be greater than zero")

	cases := map[string]struct {
		err  error
		want int
	}{
		"nil":        {nil, http.StatusOK},
		"validation": {verr, http.StatusBadRequest},
		"not found":  {domain.SaleNotFound("x"), http.StatusNotFound},
		"item":       {domain.ErrItemNotFound, http.StatusNotFound},
		"state":      {domain.ErrSaleAlreadyCancelled, http.StatusUnprocessableEntity},
		"conflict":   {domain.ErrSaleVersionConflict, http.StatusConflict},
		"other":      {errors.New("db down"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), name)
	}
}

func TestRespondError_ValidationEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	verr := &domain.ValidationError{}
	verr.Add("customer", "Customer is required")
	RespondError(c, verr)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "Validation Failed", env.Message)
	assert.Equal(t, []domain.FieldError{{Field: "customer", Message: "Customer is required"}}, env.Errors)
}

func TestRespondError_InternalHidesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	RespondError(c, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Internal server error"}`, rec.Body.String())
	assert.Len(t, c.Errors, 1)
}

func TestRespondOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	RespondOK(c, http.StatusCreated, "Sale created successfully", map[string]string{"id": "1"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Sale created successfully","data":{"id":"1"}}`, rec.Body.String())
}
