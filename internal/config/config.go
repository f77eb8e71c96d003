package config

type Config struct {
	StoryboardPath string
	OutputDir      string
	Width          int
	Height         int
	FPS            int
	TimesliceMs    int
	FFmpegPath     string
	Threads        int
	Addr           string
	ShowStats      bool
	BuildVersion   string
}

// Default возвращает параметры, с которыми проект собирается без флагов.
func Default() *Config {
	return &Config{
		OutputDir:   "output",
		Width:       1280,
		Height:      720,
		FPS:         30,
		TimesliceMs: 250,
		FFmpegPath:  "ffmpeg",
		Addr:        "127.0.0.1:8787",
	}
}
