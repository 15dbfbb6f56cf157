/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMux(cfg *Config) *httprouter.Router {
	mux := httprouter.New()
	registerAvalon(cfg, zap.NewNop(), &fakeCoordinator{}, mux)
	registerHome(cfg, mux)

	return mux
}

func get(mux http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func TestIndexPageUsesPrefix(t *testing.T) {
	cfg := testConfig()
	cfg.prefix = "/games"
	mux := newTestMux(cfg)

	for _, path := range []string{"/games/avalon", "/games/avalon/room/42"} {
		rec := get(mux, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), `href="/games/assets/avalon/app.css"`)
		assert.NotContains(t, rec.Body.String(), "%PREFIX%")
	}

	assert.Equal(t, http.StatusNotFound, get(mux, "/avalon").Code)
}

func TestAssetsServed(t *testing.T) {
	mux := newTestMux(testConfig())

	css := get(mux, "/assets/avalon/app.css")
	assert.Equal(t, http.StatusOK, css.Code)
	assert.Equal(t, avalonCSS, css.Body.Bytes())

	js := get(mux, "/assets/avalon/app.js")
	assert.Equal(t, http.StatusOK, js.Code)
	assert.Equal(t, "application/javascript; charset=utf-8", js.Header().Get("Content-Type"))
}

func TestQRCodeIsPNG(t *testing.T) {
	rec := get(newTestMux(testConfig()), "/avalon/room/42/qr")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))
}

func TestHomeRedirectsToClient(t *testing.T) {
	rec := get(newTestMux(testConfig()), "/")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/avalon", rec.Header().Get("Location"))
}
