package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errMissing = errors.New("missing")
	errBusy    = errors.New("busy")
)

func TestErrorMap(t *testing.T) {
	m := NewErrorMap().
		On(errMissing, NotFoundError).
		On(errBusy, ConflictError, "try later")

	got := m.Resolve(fmt.Errorf("load: %w", errMissing))
	assert.Equal(t, http.StatusNotFound, got.Status)
	assert.Equal(t, "load: missing", got.Message)
	assert.ErrorIs(t, got, errMissing)

	got = m.Resolve(errBusy)
	assert.Equal(t, http.StatusConflict, got.Status)
	assert.Equal(t, "try later", got.Message)

	got = m.Resolve(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, "Something went wrong", got.Message)

	own := BadRequestError("nope")
	assert.Same(t, own, m.Resolve(fmt.Errorf("wrapped: %w", own)))
}

type probeRequest struct {
	Kind string `query:"kind" json:"kind" default:"company" validate:"oneof=company blockholder"`
	N    int    `query:"n" json:"n" default:"10" validate:"gte=1,lte=100"`
}

type probeHandler struct{}

func (probeHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/probe", func(c echo.Context) error {
		req := &probeRequest{}
		if verr := ReadAndValidateRequest(c, req); verr != nil {
			return BadRequestResponse(c, verr)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/panic", func(echo.Context) error { panic("kaboom") })
}

func serve(t *testing.T, target string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	srv := NewServer(probeHandler{}, WithRegistry(prometheus.NewRegistry()))
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestReadAndValidateRequest(t *testing.T) {
	rec, body := serve(t, "/probe")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"kind": "company", "n": float64(10)}, body.Data)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec, body = serve(t, "/probe?kind=planet&n=500")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := body.Data.([]interface{})
	require.Len(t, errs, 2)
	first := errs[0].(map[string]interface{})
	assert.Equal(t, "kind", first["field"])
	assert.Equal(t, "ERR_ONEOF", first["code"])
	assert.Equal(t, "kind must be one of: company, blockholder", first["message"])
	second := errs[1].(map[string]interface{})
	assert.Equal(t, "n must be at most 100", second["message"])

	rec, body = serve(t, "/probe?n=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_BIND", body.Data.([]interface{})[0].(map[string]interface{})["code"])
}

func TestServerErrorEnvelope(t *testing.T) {
	rec, body := serve(t, "/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, body.Status)

	rec, body = serve(t, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", body.Message)
}
