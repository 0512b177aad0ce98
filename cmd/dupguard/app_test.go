package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/c360/dupguard/config"
	"github.com/c360/dupguard/guard"
	"github.com/c360/dupguard/httpguard"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig(framework string) *config.Config {
	cfg := config.Default()
	cfg.HTTP.Framework = framework
	cfg.Store.Memory.CleanupInterval = 0
	return cfg
}

// DemoSuite runs the demo endpoints on one HTTP framework.
type DemoSuite struct {
	suite.Suite
	framework string
	app       *app
	server    *httptest.Server
}

func TestDemo_NetHTTP(t *testing.T) {
	suite.Run(t, &DemoSuite{framework: config.FrameworkNetHTTP})
}

func TestDemo_Gin(t *testing.T) {
	suite.Run(t, &DemoSuite{framework: config.FrameworkGin})
}

func TestDemo_Echo(t *testing.T) {
	suite.Run(t, &DemoSuite{framework: config.FrameworkEcho})
}

func (s *DemoSuite) SetupTest() {
	a, err := newApp(context.Background(), memoryConfig(s.framework), discardLogger())
	s.Require().NoError(err)
	s.app = a
	s.server = httptest.NewServer(a.handler)
}

func (s *DemoSuite) TearDownTest() {
	s.server.Close()
	s.NoError(s.app.Close(context.Background()))
}

func (s *DemoSuite) do(method, path, body string) (int, string) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, strings.TrimSpace(string(data))
}

func (s *DemoSuite) assertRejected(code int, body string) {
	s.Equal(http.StatusConflict, code)
	var resp httpguard.ErrorResponse
	s.Require().NoError(json.Unmarshal([]byte(body), &resp))
	s.Equal(guard.DefaultRejectionMessage, resp.Error)
}

func (s *DemoSuite) TestGetRepeatedIsRejected() {
	code, body := s.do(http.MethodGet, "/test?foo=foo&bar=bar", "")
	s.Equal(http.StatusOK, code)
	s.Equal("foobar", body)

	s.assertRejected(s.do(http.MethodGet, "/test?foo=foo&bar=bar", ""))

	code, _ = s.do(http.MethodGet, "/test?foo=foo&bar=baz", "")
	s.Equal(http.StatusOK, code, "different arguments are a different call")
}

func (s *DemoSuite) TestPostRepeatedIsRejected() {
	code, body := s.do(http.MethodPost, "/test", `{"foo":"foo","bar":"bar"}`)
	s.Equal(http.StatusOK, code)
	s.JSONEq(`{"foo":"foo","bar":"bar"}`, body)

	s.assertRejected(s.do(http.MethodPost, "/test", `{"bar":"bar","foo":"foo"}`))
}

func (s *DemoSuite) TestKeyExpressionOnQueryParameter() {
	code, _ := s.do(http.MethodGet, "/test/spel?foo=foo&bar=bar", "")
	s.Equal(http.StatusOK, code)

	// Only foo is part of the key.
	s.assertRejected(s.do(http.MethodGet, "/test/spel?foo=foo&bar=other", ""))

	code, _ = s.do(http.MethodGet, "/test/spel?foo=other&bar=bar", "")
	s.Equal(http.StatusOK, code)
}

func (s *DemoSuite) TestKeyExpressionOnBodyField() {
	code, _ := s.do(http.MethodPost, "/test/spel", `{"foo":"foo","bar":"bar"}`)
	s.Equal(http.StatusOK, code)

	s.assertRejected(s.do(http.MethodPost, "/test/spel", `{"foo":"different","bar":"bar"}`))
}

func (s *DemoSuite) TestNoParams() {
	code, body := s.do(http.MethodGet, "/test/no-params", "")
	s.Equal(http.StatusOK, code)
	s.Equal("no-params", body)

	s.assertRejected(s.do(http.MethodGet, "/test/no-params", ""))
}

func (s *DemoSuite) TestTerminationReleasesClaim() {
	for i := 0; i < 3; i++ {
		code, body := s.do(http.MethodGet, "/test/termination?foo=foo&bar=bar", "")
		s.Equal(http.StatusOK, code)
		s.Equal("foobar", body)
	}
}

func (s *DemoSuite) TestTerminationReleasesClaimOnFailure() {
	for i := 0; i < 2; i++ {
		code, body := s.do(http.MethodGet, "/test/termination/exception?foo=foo&bar=bar", "")
		s.Equal(http.StatusInternalServerError, code, "the failure, not a rejection, is reported")
		s.Contains(body, terminationExceptionText)
	}
}

func (s *DemoSuite) TestTerminationWithLongTTL() {
	for i := 0; i < 2; i++ {
		code, _ := s.do(http.MethodGet, "/test/termination/long-ttl?foo=foo&bar=bar", "")
		s.Equal(http.StatusOK, code)
	}
}

func (s *DemoSuite) TestHealthAndMetrics() {
	code, body := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, code)
	s.Contains(body, `"status":"healthy"`)

	s.do(http.MethodGet, "/test?foo=a&bar=b", "")
	s.do(http.MethodGet, "/test?foo=a&bar=b", "")

	code, body = s.do(http.MethodGet, "/metrics", "")
	s.Equal(http.StatusOK, code)
	s.Contains(body, `dupguard_guard_acquire_total{outcome="acquired"}`)
	s.Contains(body, `dupguard_guard_acquire_total{outcome="rejected"}`)
	s.Contains(body, `dupguard_store_up{store="memory"} 1`)
	s.Contains(body, `dupguard_http_requests_total{code="409",route="/test"}`)
	s.Contains(body, `dupguard_build_info{version="`+Version+`"} 1`)
}

func TestNewApp_MetricsDisabled(t *testing.T) {
	cfg := memoryConfig(config.FrameworkNetHTTP)
	cfg.Metrics.Enabled = false

	a, err := newApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewApp_UnknownFramework(t *testing.T) {
	cfg := memoryConfig("fiber")

	_, err := newApp(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown http framework")
}
