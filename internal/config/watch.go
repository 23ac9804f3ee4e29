package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"optiq/internal/logger"
)

// Watcher 监听配置文件变更并热加载可调参数。
// 加载失败只告警，不替换当前配置。
type Watcher struct {
	path     string
	onChange func(*Config)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewWatcher(path string, onChange func(*Config)) *Watcher {
	return &Watcher{path: path, onChange: onChange}
}

func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// 监听目录而不是文件：多数编辑器/部署工具用 rename+create 替换文件。
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}
	w.mu.Lock()
	w.watcher = fsw
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(fsw)
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
	if w.done != nil {
		close(w.done)
		w.done = nil
	}
}

func (w *Watcher) loop(fsw *fsnotify.Watcher) {
	target := filepath.Clean(w.path)
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warnf("config reload failed, keeping previous: %v", err)
				continue
			}
			logger.Infof("config reloaded from %s", w.path)
			if w.onChange != nil {
				w.onChange(cfg)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watcher error: %v", err)
		}
	}
}
