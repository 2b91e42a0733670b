package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusCreated, map[string]string{"Id": "1"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"Id":"1"}`, rr.Body.String())
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusBadRequest, "Base.1.13.PropertyValueFormatError", "bad destination")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Base.1.13.PropertyValueFormatError", body["error"]["code"])
	assert.Equal(t, "bad destination", body["error"]["message"])
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"Destination":"x","Bogus":1}`))
	var v struct {
		Destination string
	}
	assert.Error(t, DecodeJSON(req, &v))
}
