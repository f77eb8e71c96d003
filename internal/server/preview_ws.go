package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Буфер кадров на зрителя: отстающее соединение теряет кадры,
// а не тормозит цикл отрисовки.
const viewerQueueSize = 8

// handlePreviewSocket streams PNG preview frames as binary messages.
func (s *Server) handlePreviewSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	queue := make(chan []byte, viewerQueueSize)
	s.mu.Lock()
	s.viewers[conn] = queue
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.viewers, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	// Читатель нужен только чтобы заметить закрытие со стороны UI.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-queue:
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (s *Server) broadcastFrame(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, queue := range s.viewers {
		select {
		case queue <- frame:
		default: // зритель отстаёт — кадр пропускается
		}
	}
}
