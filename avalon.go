/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	_ "embed"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const avalonPath = "/avalon"

//go:embed avalon/index.html
var indexHTML []byte

//go:embed avalon/app.css
var avalonCSS []byte

//go:embed avalon/app.js
var avalonJS []byte

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the request and runs one session until it closes.
func serveWS(cfg *Config, logger *zap.Logger, coord roomCoordinator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("Websocket upgrade failed", zap.String("remote", realIP(r)), zap.Error(err))
			return
		}

		newSession(cfg, logger.With(zap.String("remote", realIP(r))), coord, conn).serve(r.Context())
	}
}

// qrHandler renders a PNG QR code linking to /avalon/room/:room.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("room") == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveStatic(cfg *Config, contentType string, data []byte) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(data)
	}
}

// registerAvalon sets up routes so that:
//   - $path                  → client page
//   - $path/room/:room       → client page that joins :room after naming
//   - $path/room/:room/qr    → PNG QR code for that page
//   - $path/ws               → websocket session
func registerAvalon(cfg *Config, logger *zap.Logger, coord roomCoordinator, mux *httprouter.Router) {
	page := bytes.ReplaceAll(indexHTML, []byte("%PREFIX%"), []byte(cfg.prefix))

	mux.GET(cfg.prefix+avalonPath, serveStatic(cfg, "text/html; charset=utf-8", page))
	mux.GET(cfg.prefix+avalonPath+"/room/:room", serveStatic(cfg, "text/html; charset=utf-8", page))
	mux.GET(cfg.prefix+avalonPath+"/room/:room/qr", qrHandler)
	mux.GET(cfg.prefix+avalonPath+"/ws", serveWS(cfg, logger, coord))

	mux.GET(cfg.prefix+"/assets/avalon/app.css", serveStatic(cfg, "text/css; charset=utf-8", avalonCSS))
	mux.GET(cfg.prefix+"/assets/avalon/app.js", serveStatic(cfg, "application/javascript; charset=utf-8", avalonJS))
}
