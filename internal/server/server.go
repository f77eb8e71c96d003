package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"

	"github.com/ivlev/slidecast/internal/capture"
	"github.com/ivlev/slidecast/internal/storyboard"
	"github.com/ivlev/slidecast/internal/studio"
)

// Server exposes the studio to the editing UI: storyboard IO, preview
// control, export, artifact download and the textual status stream.
type Server struct {
	studio         *studio.Studio
	storyboardPath string // куда сохраняются правки из UI; пусто — не сохранять
	events         *sse.Server
	upgrader       websocket.Upgrader

	mu      sync.Mutex
	viewers map[*websocket.Conn]chan []byte
}

func New(st *studio.Studio, storyboardPath string) *Server {
	events := sse.New()
	events.AutoReplay = false
	events.CreateStream("status")

	s := &Server{
		studio:         st,
		storyboardPath: storyboardPath,
		events:         events,
		upgrader:       websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		viewers:        make(map[*websocket.Conn]chan []byte),
	}

	st.OnStatus(func(state string) {
		events.Publish("status", &sse.Event{Data: []byte(state)})
	})
	st.OnPreviewFrame(s.broadcastFrame)

	return s
}

// Handler собирает маршруты API под CORS-обёрткой: редактор живёт на
// другом локальном порту.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/storyboard", s.handleStoryboard)
	mux.HandleFunc("/api/preview/start", s.handlePreviewStart)
	mux.HandleFunc("/api/preview/stop", s.handlePreviewStop)
	mux.HandleFunc("/api/preview/ws", s.handlePreviewSocket)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/artifact", s.handleArtifact)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.events.ServeHTTP)

	return cors.AllowAll().Handler(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStoryboard(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		board := s.studio.Storyboard()
		if board == nil {
			http.Error(w, "раскадровка не загружена", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, board)

	case http.MethodPut:
		var board storyboard.Storyboard
		if err := json.NewDecoder(r.Body).Decode(&board); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		board.Normalize()
		if err := board.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		if err := s.studio.SetStoryboard(&board); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if s.storyboardPath != "" {
			if err := storyboard.Write(&board, s.storyboardPath); err != nil {
				log.Printf("[!] Не удалось сохранить раскадровку: %v", err)
			}
		}
		writeJSON(w, http.StatusOK, &board)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePreviewStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.studio.StartPreview(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": s.studio.Status()})
}

func (s *Server) handlePreviewStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.studio.StopPreview()
	writeJSON(w, http.StatusOK, map[string]string{"status": s.studio.Status()})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results, err := s.studio.Export()
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrBusy):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, capture.ErrNoSlides):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		}
		return
	}

	// Результат придёт асинхронно; статус уходит в SSE-поток.
	go func() {
		res := <-results
		if res.Err != nil {
			log.Printf("[!] Экспорт не удался: %v", res.Err)
			return
		}
		fmt.Printf("[+++] Готово: %s (%d байт, %d кадров за %.1fс)\n",
			res.Artifact.Path, res.Artifact.Size, res.Frames, res.Elapsed.Seconds())
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rendering"})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	artifact := s.studio.Artifact()
	if artifact == nil {
		http.Error(w, "артефакт ещё не создан", http.StatusNotFound)
		return
	}

	f, err := artifact.Open()
	if err != nil {
		http.Error(w, err.Error(), http.StatusGone)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/webm")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename()))
	io.Copy(w, f)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    s.studio.Status(),
		"recording": s.studio.Session().Recording(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
