package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/server"
	"github.com/ivlev/slidecast/internal/source"
	"github.com/ivlev/slidecast/internal/storyboard"
	"github.com/ivlev/slidecast/internal/studio"
	"github.com/ivlev/slidecast/internal/system"
	"github.com/ivlev/slidecast/internal/watcher"
)

var version = "dev"

func main() {
	// Увеличиваем лимиты системы (для macOS/Linux)
	system.InitResourceLimits()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "export":
		runExport(os.Args[2:])
	case "preview":
		runPreview(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "import":
		runImport(os.Args[2:])
	case "init":
		runInit(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("slidecast %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "[-] Неизвестная команда: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `slidecast — проигрывание и запись раскадровок

Команды:
  init     Создать storyboard.yaml с одним слайдом
  import   Сгенерировать раскадровку из PDF или папки с изображениями
  export   Записать раскадровку в .webm
  preview  Зациклить воспроизведение с перечитыванием файла при изменении
  serve    Поднять локальный HTTP API (предпросмотр по WebSocket, статус по SSE)

Флаги каждой команды: slidecast <команда> -h
`)
}

// commonFlags регистрирует флаги, общие для export/preview/serve.
func commonFlags(fs *flag.FlagSet, cfg *config.Config) (preset *string) {
	fs.StringVar(&cfg.StoryboardPath, "input", "", "Путь к storyboard.yaml (по умолчанию: самый свежий *.yaml в текущей папке)")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Ширина")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "Высота")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "FPS")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "Путь к ffmpeg")
	fs.IntVar(&cfg.TimesliceMs, "timeslice", cfg.TimesliceMs, "Интервал выдачи фрагментов кодировщиком (мс)")
	fs.IntVar(&cfg.Threads, "threads", 0, "Потоки кодировщика (0 - авто, половина логических ядер)")
	return fs.String("preset", "", "Пресет формата: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram)")
}

func applyPreset(cfg *config.Config, preset string) {
	switch preset {
	case "16:9":
		cfg.Width, cfg.Height = 1280, 720
	case "9:16":
		cfg.Width, cfg.Height = 720, 1280
	case "4:5":
		cfg.Width, cfg.Height = 1080, 1350
	case "":
	default:
		log.Fatalf("[-] Неизвестный пресет: %s", preset)
	}
}

// loadStoryboard читает раскадровку по пути из конфигурации. Если путь
// не задан, берётся самый свежий *.yaml в текущей папке.
func loadStoryboard(cfg *config.Config) *storyboard.Storyboard {
	if cfg.StoryboardPath == "" {
		latest, err := system.FindLatestStoryboard(".")
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Создайте раскадровку: slidecast init", err)
		}
		cfg.StoryboardPath = latest
		fmt.Printf("[*] Выбран файл: %s\n", cfg.StoryboardPath)
	}

	board, err := storyboard.Read(cfg.StoryboardPath)
	if err != nil {
		log.Fatalf("[-] Ошибка чтения раскадровки: %v", err)
	}
	if err := board.Validate(); err != nil {
		log.Fatalf("[-] Раскадровка некорректна: %v", err)
	}
	return board
}

func prepareHost(cfg *config.Config) system.HostInfo {
	host := system.ProbeHost()
	if cfg.Threads <= 0 {
		cfg.Threads = host.EncoderThreads()
	}
	host.WarnIfTight(cfg.Width, cfg.Height, cfg.FPS)
	return host
}

func runExport(args []string) {
	cfg := config.Default()
	cfg.BuildVersion = version

	fs := flag.NewFlagSet("export", flag.ExitOnError)
	preset := commonFlags(fs, cfg)
	outputPtr := fs.String("output", "", "Путь к видео (если пусто, генерируется автоматически в output/)")
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Папка для результата")
	fs.BoolVar(&cfg.ShowStats, "stats", false, "Показать статистику записи")
	fs.Parse(args)
	applyPreset(cfg, *preset)

	os.MkdirAll(cfg.OutputDir, 0755)

	board := loadStoryboard(cfg)
	host := prepareHost(cfg)
	if cfg.ShowStats {
		fmt.Printf("[*] Хост: %d ядер, %d МБ свободно, потоков кодировщика: %d\n",
			host.LogicalCores, host.AvailableMB, cfg.Threads)
	}

	st := studio.New(cfg)
	defer st.Close()

	if err := st.SetStoryboard(board); err != nil {
		log.Fatalf("[-] Ошибка: %v", err)
	}

	fmt.Printf("[*] Запись: %d слайдов, %.1fs, %dx%d@%d\n",
		len(board.Slides), float64(st.Timeline().TotalMs)/1000.0,
		cfg.Width, cfg.Height, cfg.FPS)

	results, err := st.Export()
	if err != nil {
		log.Fatalf("[-] Ошибка запуска записи: %v", err)
	}

	res := <-results
	if res.Err != nil {
		log.Fatalf("[-] Ошибка записи: %v", res.Err)
	}

	finalOutput := *outputPtr
	if finalOutput == "" {
		finalOutput = filepath.Join(cfg.OutputDir, res.Artifact.Filename())
	}
	if err := os.Rename(res.Artifact.Path, finalOutput); err != nil {
		log.Fatalf("[-] Не удалось переместить результат: %v", err)
	}

	if cfg.ShowStats {
		fps := float64(res.Frames) / res.Elapsed.Seconds()
		fmt.Printf("[*] Кадров: %d за %s (%.1f fps), размер: %d байт\n",
			res.Frames, res.Elapsed.Round(time.Millisecond), fps, res.Artifact.Size)
	}

	fmt.Printf("[+++] Успех! Результат: %s\n", finalOutput)
}

func runPreview(args []string) {
	cfg := config.Default()
	cfg.BuildVersion = version

	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	preset := commonFlags(fs, cfg)
	fs.Parse(args)
	applyPreset(cfg, *preset)

	board := loadStoryboard(cfg)
	prepareHost(cfg)

	st := studio.New(cfg)
	defer st.Close()

	if err := st.SetStoryboard(board); err != nil {
		log.Fatalf("[-] Ошибка: %v", err)
	}

	w := watchStoryboard(cfg, st)
	if w != nil {
		defer w.Close()
	}

	if err := st.StartPreview(); err != nil {
		log.Fatalf("[-] Ошибка предпросмотра: %v", err)
	}
	fmt.Printf("[*] Предпросмотр запущен, файл перечитывается при сохранении. Ctrl+C для выхода.\n")

	waitForSignal()
	fmt.Printf("[*] Остановка\n")
}

func runServe(args []string) {
	cfg := config.Default()
	cfg.BuildVersion = version

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	preset := commonFlags(fs, cfg)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Адрес HTTP API")
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Папка для результата")
	fs.Parse(args)
	applyPreset(cfg, *preset)

	os.MkdirAll(cfg.OutputDir, 0755)
	prepareHost(cfg)

	st := studio.New(cfg)
	defer st.Close()

	// Раскадровка на старте не обязательна: её можно загрузить через PUT.
	if cfg.StoryboardPath == "" {
		if latest, err := system.FindLatestStoryboard("."); err == nil {
			cfg.StoryboardPath = latest
		} else {
			cfg.StoryboardPath = "storyboard.yaml"
		}
	}
	if board, err := storyboard.Read(cfg.StoryboardPath); err == nil {
		if err := st.SetStoryboard(board); err != nil {
			log.Printf("[!] Раскадровка не принята: %v", err)
		} else {
			fmt.Printf("[*] Загружена раскадровка: %s\n", cfg.StoryboardPath)
		}
	}

	w := watchStoryboard(cfg, st)
	if w != nil {
		defer w.Close()
	}

	srv := server.New(st, cfg.StoryboardPath)
	fmt.Printf("[*] API слушает на http://%s (версия %s)\n", cfg.Addr, version)
	if err := http.ListenAndServe(cfg.Addr, srv.Handler()); err != nil {
		log.Fatalf("[-] Ошибка сервера: %v", err)
	}
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	inputPtr := fs.String("input", "", "Путь к PDF или папке с изображениями")
	outputPtr := fs.String("output", "storyboard.yaml", "Путь к создаваемой раскадровке")
	titlePtr := fs.String("title", "", "Название (по умолчанию: имя файла)")
	dpiPtr := fs.Int("dpi", 150, "DPI отрисовки страниц")
	durationPtr := fs.Float64("page-duration", storyboard.DefaultDuration, "Длительность показа одной страницы в секундах")
	fs.Parse(args)

	if *inputPtr == "" {
		log.Fatalf("[-] Ошибка: укажите -input (PDF или папка с изображениями)")
	}

	var src source.Source
	var err error
	if strings.HasSuffix(strings.ToLower(*inputPtr), ".pdf") {
		src, err = source.NewFitzPDFSource(*inputPtr)
	} else {
		src, err = source.NewImageSource(*inputPtr)
	}
	if err != nil {
		log.Fatalf("[-] Ошибка инициализации источника: %v", err)
	}
	defer src.Close()

	title := *titlePtr
	if title == "" {
		base := filepath.Base(*inputPtr)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	board, err := source.BuildStoryboard(src, title, *dpiPtr, *durationPtr)
	if err != nil {
		log.Fatalf("[-] Ошибка импорта: %v", err)
	}
	if err := storyboard.Write(board, *outputPtr); err != nil {
		log.Fatalf("[-] Ошибка записи: %v", err)
	}

	fmt.Printf("[+++] Успех! Слайдов: %d, раскадровка: %s\n", len(board.Slides), *outputPtr)
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	outputPtr := fs.String("output", "storyboard.yaml", "Путь к создаваемой раскадровке")
	titlePtr := fs.String("title", "Моя раскадровка", "Название")
	fs.Parse(args)

	if _, err := os.Stat(*outputPtr); err == nil {
		log.Fatalf("[-] Файл уже существует: %s", *outputPtr)
	}

	board := storyboard.New(*titlePtr)
	if err := storyboard.Write(board, *outputPtr); err != nil {
		log.Fatalf("[-] Ошибка записи: %v", err)
	}

	fmt.Printf("[+++] Создан %s. Отредактируйте и запустите: slidecast preview\n", *outputPtr)
}

// watchStoryboard перечитывает файл раскадровки при каждом сохранении.
func watchStoryboard(cfg *config.Config, st *studio.Studio) *watcher.Watcher {
	if cfg.StoryboardPath == "" {
		return nil
	}
	w, err := watcher.New(cfg.StoryboardPath, func(path string) {
		board, err := storyboard.Read(path)
		if err != nil {
			log.Printf("[!] Файл не перечитан: %v", err)
			return
		}
		if err := board.Validate(); err != nil {
			log.Printf("[!] Раскадровка некорректна: %v", err)
			return
		}
		if err := st.SetStoryboard(board); err != nil {
			log.Printf("[!] Раскадровка не принята: %v", err)
			return
		}
		fmt.Printf("[*] Раскадровка перечитана: %d слайдов\n", len(board.Slides))
	})
	if err != nil {
		log.Printf("[!] Наблюдение за файлом недоступно: %v", err)
		return nil
	}
	return w
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
}
