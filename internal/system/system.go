package system

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Не удалось получить лимит файлов: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Не удалось установить лимит файлов: %v", err)
	}
}

func FindLatestStoryboard(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		name := strings.ToLower(f.Name())
		if !f.IsDir() && (strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(latestTime) {
				latestTime = info.ModTime()
				latestFile = filepath.Join(dir, f.Name())
			}
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено раскадровок (*.yaml)", dir)
	}

	return latestFile, nil
}

// HostInfo — сведения о машине, влияющие на параметры кодирования.
type HostInfo struct {
	LogicalCores int
	AvailableMB  uint64
}

// ProbeHost собирает данные о CPU и памяти. Любая ошибка gopsutil
// деградирует до значений из runtime, а не прерывает запуск.
func ProbeHost() HostInfo {
	info := HostInfo{LogicalCores: runtime.NumCPU()}

	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.LogicalCores = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.AvailableMB = vm.Available / (1024 * 1024)
	}

	return info
}

// EncoderThreads выбирает число потоков ffmpeg: половина логических ядер,
// минимум один поток.
func (h HostInfo) EncoderThreads() int {
	n := h.LogicalCores / 2
	if n < 1 {
		n = 1
	}
	return n
}

// WarnIfTight предупреждает, когда свободной памяти мало для буферов кадров.
func (h HostInfo) WarnIfTight(width, height, fps int) {
	if h.AvailableMB == 0 {
		return
	}
	// Грубая оценка: секунда несжатых RGBA-кадров с двукратным запасом.
	needMB := uint64(width*height*4*fps) * 2 / (1024 * 1024)
	if needMB > h.AvailableMB {
		fmt.Printf("[!] Свободной памяти %d МБ может не хватить для буфера кадров (~%d МБ)\n",
			h.AvailableMB, needMB)
	}
}
