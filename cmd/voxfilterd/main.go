// Command voxfilterd exposes the noise reduction engine as an HTTP
// service: file processing, chunk retrieval, diagnostics and a websocket
// feed of live metrics and engine events.
//
// Configuration is read from the environment (optionally a .env file):
//
//	VOXFILTERD_LISTEN_ADDR      listen address, default :8080
//	VOXFILTERD_REDUCTION_LEVEL  low, medium, high or auto
//	VOXFILTERD_ALGORITHM        auto, rnnoise or gate
package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/voxfilter-go/voxfilter/pkg/engine"
	"github.com/voxfilter-go/voxfilter/pkg/pipeline"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	envFileFlag := pflag.String("env-file", "", "load environment variables from this file")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *envFileFlag != "" {
		assertNoError(godotenv.Load(*envFileFlag))
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(ctx, "no .env file: %v", err)
	}

	listenAddr := envOr("VOXFILTERD_LISTEN_ADDR", ":8080")
	level := envOr("VOXFILTERD_REDUCTION_LEVEL", "medium")
	algorithm := envOr("VOXFILTERD_ALGORITHM", "auto")

	e := engine.New(engine.Config{
		NoiseReductionLevel: pipeline.Level(level),
		Algorithm:           engine.Algorithm(algorithm),
		AllowDegraded:       true,
	})
	assertNoError(e.Initialize(ctx))
	defer func() {
		if err := e.Destroy(ctx, false); err != nil {
			logger.Errorf(ctx, "unable to destroy the engine: %v", err)
		}
	}()

	svc := &service{engine: e}

	router := mux.NewRouter()
	router.HandleFunc("/process", svc.handleProcess).Methods(http.MethodPost)
	router.HandleFunc("/diagnostics", svc.handleDiagnostics).Methods(http.MethodGet)
	router.HandleFunc("/chunks", svc.handleListChunks).Methods(http.MethodGet)
	router.HandleFunc("/chunks/{id}", svc.handleDeleteChunk).Methods(http.MethodDelete)
	router.HandleFunc("/ws", svc.handleWebSocket)

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	observability.Go(ctx, func() {
		logger.Infof(ctx, "listening on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf(ctx, "the HTTP server failed: %v", err)
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof(ctx, "shutting down...")
	shutdownCtx, cancelFunc := context.WithTimeout(ctx, 10*time.Second)
	defer cancelFunc()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "unable to shut the HTTP server down: %v", err)
	}
}

type service struct {
	engine *engine.Engine
}

// handleProcess accepts a WAV (or ogg/vorbis, by Content-Type) body and
// responds with the processed WAV.
func (s *service) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	input, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var output []byte
	if strings.Contains(r.Header.Get("Content-Type"), "ogg") {
		output, err = s.engine.ProcessOggFile(ctx, input)
	} else {
		output, err = s.engine.ProcessFile(ctx, input)
	}
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	w.Write(output)
}

func (s *service) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Diagnostics(r.Context()))
}

func (s *service) handleListChunks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Chunks())
}

func (s *service) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.engine.RemoveChunk(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no chunk with the id " + id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// handleWebSocket streams engine events and periodic metrics to the
// client until it disconnects.
func (s *service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sendCh := make(chan wsMessage, 64)
	unsubscribe := s.engine.Subscribe(func(ev engine.Event) {
		msg := wsMessage{Type: ev.EventName(), Data: ev}
		select {
		case sendCh <- msg:
		default:
			// a slow client loses events rather than stalling the engine
		}
	})
	defer unsubscribe()

	disconnectedCh := make(chan struct{})
	observability.Go(ctx, func() {
		defer close(disconnectedCh)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				select {
				case sendCh <- wsMessage{Type: "pong"}:
				default:
				}
			}
		}
	})

	for {
		select {
		case <-disconnectedCh:
			return
		case msg := <-sendCh:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func statusForError(err error) int {
	switch engine.CodeOf(err) {
	case "invalid-state":
		return http.StatusConflict
	case "unsupported-format", "invalid-frame", "invalid-sample":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  engine.CodeOf(err),
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
