package helper

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowpro-api/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGetStatusCode(t *testing.T) {
	h := &HTTPHelper{}

	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{models.ErrTokenInvalid, http.StatusUnauthorized},
		{models.ErrPermissionDenied, http.StatusForbidden},
		{models.ErrNotApproved, http.StatusBadRequest},
		{models.ErrPublicationNotFound, http.StatusNotFound},
		{models.ErrAlreadyApproved, http.StatusConflict},
		{fmt.Errorf("approve: %w", models.ErrAlreadyApproved), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, h.GetStatusCode(tt.err), "%v", tt.err)
	}
}

func TestSendErrorFromHidesInternalDetail(t *testing.T) {
	h := &HTTPHelper{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	require.NoError(t, h.SendErrorFrom(c, errors.New("pq: connection refused")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestSendBindErrorTranslatesFields(t *testing.T) {
	h := NewHTTPHelper(nil)
	router := gin.New()
	router.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.SendBindError(c, err)
			return
		}
		h.SendSuccess(c, "ok", nil)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"not-an-email"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		CodeType    string              `json:"code_type"`
		CodeMessage map[string][]string `json:"code_message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validationError", body.CodeType)
	assert.Contains(t, body.CodeMessage, "email")
	assert.Contains(t, body.CodeMessage, "password")
	assert.Contains(t, body.CodeMessage["password"][0], "required")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeneratePaging(t *testing.T) {
	h := &HTTPHelper{}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "http://api.test/api/v1/articles?status=published&page=2", nil)

	paging := h.GeneratePaging(c, 10, 2, 35)
	assert.Equal(t, 4, paging["total_pages"])

	links := paging["links"].(map[string]interface{})
	assert.Equal(t, "http://api.test/api/v1/articles?limit=10&page=1&status=published", links["previous"])
	assert.Equal(t, "http://api.test/api/v1/articles?limit=10&page=3&status=published", links["next"])
	assert.Equal(t, "http://api.test/api/v1/articles?limit=10&page=4&status=published", links["last"])

	paging = h.GeneratePaging(c, 10, 1, 0)
	links = paging["links"].(map[string]interface{})
	assert.Equal(t, 0, paging["total_pages"])
	assert.Empty(t, links["next"])
	assert.Empty(t, links["previous"])
}
