package encoder

import (
	"os/exec"
	"strings"
	"sync"
)

// Format describes one negotiable encoding: a codec plus its container.
// An empty Codec means "let the encoder pick the muxer default".
type Format struct {
	Codec string // имя кодека ffmpeg, например "libvpx-vp9"
	Muxer string // контейнер, например "webm"
	Tag   string // человекочитаемая метка для статуса/логов
}

// Preferred — фиксированный список предпочтений: самый современный
// кодек первым, самый совместимый последним. Если не поддержан ни один,
// кодек выбирает сам контейнер.
var Preferred = []Format{
	{Codec: "libvpx-vp9", Muxer: "webm", Tag: "video/webm;codecs=vp9"},
	{Codec: "libvpx", Muxer: "webm", Tag: "video/webm;codecs=vp8"},
}

// DefaultFormat is the fallback when nothing from Preferred is
// supported: the webm muxer with its default codec.
var DefaultFormat = Format{Muxer: "webm", Tag: "video/webm"}

// Service — внешний потоковый кодировщик поверх системного ffmpeg.
type Service struct {
	Path    string // бинарь ffmpeg
	Threads int    // потоки кодирования, 0 — выбор ffmpeg

	mu       sync.Mutex
	probed   bool
	encoders map[string]bool
}

func NewService() *Service {
	return &Service{Path: "ffmpeg"}
}

// Supports reports whether the codec of the format is available.
// Приоритеты опроса:
// 1. Кэшированный список `ffmpeg -encoders`
// 2. Если опрос недоступен (нет бинаря), формат считается
//    неподдержанным — без паники, переговоры уйдут в формат по умолчанию.
func (s *Service) Supports(f Format) bool {
	if f.Codec == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeLocked()
	return s.encoders[f.Codec]
}

// Negotiate picks the first supported format from the preference list,
// or nil meaning "encoder default".
func (s *Service) Negotiate(prefs []Format) *Format {
	for i := range prefs {
		if s.Supports(prefs[i]) {
			return &prefs[i]
		}
	}
	return nil
}

func (s *Service) probeLocked() {
	if s.probed {
		return
	}
	s.probed = true
	s.encoders = make(map[string]bool)

	cmd := exec.Command(s.Path, "-hide_banner", "-encoders")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return
	}

	// Строки вида " V....D libvpx-vp9    libvpx VP9 encoder".
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		flags := fields[0]
		if !strings.HasPrefix(flags, "V") && !strings.HasPrefix(flags, "A") {
			continue
		}
		s.encoders[fields[1]] = true
	}
}
