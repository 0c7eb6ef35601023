package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"

	"tiltgame/internal/game"
	"tiltgame/internal/geom"
	"tiltgame/internal/logging"
)

//go:embed assets/*
var embeddedAssets embed.FS

const commandTimeout = 2 * time.Second

// GameController is the game loop as seen by the HTTP layer.
// Implementations must be safe to call concurrently.
type GameController interface {
	GameState
	Resize(ctx context.Context, size geom.Size) error
	Reset(ctx context.Context) error
}

var _ GameController = (*game.Runner)(nil)

// Deps are the collaborators served by Handler. Only Status is required.
type Deps struct {
	Status *Status
	Events *EventBroadcaster
	Game   GameController
	Logs   *LogBuffer
	Log    *zap.Logger
}

type playfieldRequest struct {
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

func Handler(d Deps) http.Handler {
	if d.Status == nil {
		d.Status = NewStatus()
	}
	log := logging.OrNop(d.Log).Named("web")
	mux := http.NewServeMux()

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = nil
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, d.Status.Snapshot(time.Now().UTC(), d.Game, d.Events))
	})

	if d.Events != nil {
		mux.Handle("/api/frames/stream", sseHandler(d.Events, log))
		mux.Handle("/api/frames/ws", wsHandler(d.Events, log))
	}

	mux.HandleFunc("/api/playfield", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if d.Game == nil {
			http.Error(w, "game unavailable", http.StatusServiceUnavailable)
			return
		}
		var req playfieldRequest
		if err := decodeStrictJSON(r.Body, &req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Width == nil || req.Height == nil {
			http.Error(w, "width and height are required", http.StatusBadRequest)
			return
		}
		size := geom.Size{Width: *req.Width, Height: *req.Height}
		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()
		if err := d.Game.Resize(ctx, size); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Info("playfield resized via api", zap.Float64("w", size.Width), zap.Float64("h", size.Height))
		f, _ := d.Game.Snapshot()
		writeJSON(w, http.StatusOK, f)
	})

	mux.HandleFunc("/api/reset", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if d.Game == nil {
			http.Error(w, "game unavailable", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()
		if err := d.Game.Reset(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		f, _ := d.Game.Snapshot()
		writeJSON(w, http.StatusOK, f)
	})

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}

	if assetsFS != nil {
		fileServer := http.FileServer(http.FS(assetsFS))
		mux.Handle("/assets/", http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			fileServer.ServeHTTP(w, r)
		})))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			if path.Dir(r.URL.Path) == "/api" || path.Dir(r.URL.Path) == "/assets" {
				http.NotFound(w, r)
				return
			}
		}
		if assetsFS == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprint(w, "<!doctype html><title>tiltgame</title><p>UI unavailable. See <a href=\"/api/status\">/api/status</a>.</p>")
			return
		}
		b, err := fs.ReadFile(assetsFS, "index.html")
		if err != nil {
			http.Error(w, "ui unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})

	return mux
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, d Deps) error {
	log := logging.OrNop(d.Log).Named("web")
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("web listening", zap.String("addr", listenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// decodeStrictJSON rejects unknown fields and trailing data.
func decodeStrictJSON(r io.Reader, v any) error {
	b, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}
