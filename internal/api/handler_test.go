package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IliaW/url-scrape-archiver/internal/auth"
	"github.com/IliaW/url-scrape-archiver/internal/model"
	"github.com/IliaW/url-scrape-archiver/internal/storage"
	"github.com/IliaW/url-scrape-archiver/internal/validator"
	"github.com/IliaW/url-scrape-archiver/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type stubRunner struct {
	got      *model.ScrapeRequest
	artifact *model.ArchiveArtifact
	err      error
}

func (r *stubRunner) Run(_ context.Context, req *model.ScrapeRequest) (*model.ArchiveArtifact, error) {
	r.got = req
	return r.artifact, r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRouter(t *testing.T, runner Runner) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, testLogger())
	require.NoError(t, err)
	h := NewHandler(runner, store, auth.NewVerifier(secret), "token", testLogger())
	return NewRouter(h, testLogger()), dir
}

func token(t *testing.T) string {
	t.Helper()
	tok, err := auth.NewVerifier(secret).Issue("user-1", time.Hour)
	require.NoError(t, err)
	return tok
}

func postScrape(router *gin.Engine, body string, setAuth func(*http.Request)) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/scrape", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if setAuth != nil {
		setAuth(req)
	}
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestScrape_Success(t *testing.T) {
	runner := &stubRunner{artifact: &model.ArchiveArtifact{Filename: "scraped_1_abc.zip", Passphrase: "p4ssw0rdp4ssw0rd"}}
	router, _ := setupTestRouter(t, runner)
	tok := token(t)

	w := postScrape(router, `{"url":"  https://example.com  "}`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "Scraping complete", resp["msg"])
	assert.Equal(t, "scraped_1_abc.zip", resp["file"])
	assert.Equal(t, "p4ssw0rdp4ssw0rd", resp["password"])
	assert.Equal(t, "https://example.com", runner.got.RawURL)
	assert.Equal(t, "user-1", runner.got.Identity.Subject)
}

func TestScrape_CookieCredential(t *testing.T) {
	runner := &stubRunner{artifact: &model.ArchiveArtifact{Filename: "a.zip", Passphrase: "x"}}
	router, _ := setupTestRouter(t, runner)
	tok := token(t)

	w := postScrape(router, `{"url":"https://example.com"}`, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "token", Value: tok})
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScrape_Unauthorized(t *testing.T) {
	runner := &stubRunner{}
	router, _ := setupTestRouter(t, runner)

	w := postScrape(router, `{"url":"https://example.com"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized: No token", decode(t, w)["msg"])

	w = postScrape(router, `{"url":"https://example.com"}`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer garbage")
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid or expired token", decode(t, w)["msg"])
	assert.Nil(t, runner.got, "runner must not be called")
}

func TestScrape_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"blocked", &worker.PipelineError{Kind: worker.BlockedTarget, Msg: worker.BlockedTarget.Message()},
			http.StatusForbidden, "Access to private/internal IPs is not allowed"},
		{"timeout", &worker.PipelineError{Kind: worker.FetchTimeout, Msg: worker.FetchTimeout.Message()},
			http.StatusGatewayTimeout, "The target website did not respond in time."},
		{"packaging", &worker.PipelineError{Kind: worker.PackagingError, Msg: worker.PackagingError.Message(),
			Err: errors.New("/srv/files/x.txt: exit status 2")},
			http.StatusInternalServerError, "Failed to create ZIP file"},
		{"throttled", &worker.PipelineError{Kind: worker.TooManyRequests, Msg: worker.TooManyRequests.Message()},
			http.StatusTooManyRequests, worker.TooManyRequests.Message()},
		{"untyped", errors.New("something odd"), http.StatusInternalServerError, "Server error"},
	}
	tok := token(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupTestRouter(t, &stubRunner{err: tt.err})
			w := postScrape(router, `{"url":"https://example.com"}`, func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+tok)
			})
			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			assert.Equal(t, tt.message, resp["msg"])
			assert.NotContains(t, w.Body.String(), "/srv/files")
		})
	}
}

func TestScrape_InvalidURLCarriesFieldErrors(t *testing.T) {
	router, _ := setupTestRouter(t, &stubRunner{err: &worker.PipelineError{Kind: worker.InvalidURL, Msg: validator.MsgTooLong}})
	tok := token(t)

	w := postScrape(router, `{"url":"https://example.com"}`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"msg":"URL too long","errors":[{"msg":"URL too long","param":"url"}]}`, w.Body.String())

	w = postScrape(router, `not json`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, validator.MsgInvalidFormat, decode(t, w)["msg"])
}

func TestDownload(t *testing.T) {
	router, dir := setupTestRouter(t, &stubRunner{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scraped_1_abc.zip"), []byte("PK-data"), 0o600))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/files/scraped_1_abc.zip", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK-data", w.Body.String())
	assert.Equal(t, `attachment; filename="scraped_1_abc.zip"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
}

func TestDownload_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t, &stubRunner{})

	for _, path := range []string{"/files/missing.zip", "/files/a..b.zip", "/files/.hidden"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := setupTestRouter(t, &stubRunner{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
