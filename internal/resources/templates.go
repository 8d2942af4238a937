// Package resources renders the HTML views of the authorization flow.
// Views are embedded in the binary; a directory of same-named files may
// override them and is reloaded when it changes.
package resources

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	CallbackView      = "callback.html"
	CallbackErrorView = "callback-error.html"
)

const ServerErrorHTML = `<!DOCTYPE html><html><body><h1>Something went wrong</h1></body></html>`

//go:embed templates/*.html
var embedded embed.FS

type CallbackModel struct {
	AccessToken string
	Subject     string
	ExpiresIn   int64
	Credential  string
	Degraded    bool
}

type CallbackErrorModel struct {
	Error string
}

type Views struct {
	dir     string
	log     *slog.Logger
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	templates *template.Template
}

// NewViews loads the embedded views and, when dir is set, the overrides in
// dir, which are then watched for changes.
func NewViews(
	dir string,
	log *slog.Logger,
) (
	*Views,
	error,
) {
	if log == nil {
		log = slog.Default()
	}
	v := &Views{
		dir: dir,
		log: log.With("component", "resources"),
	}
	if err := v.load(); err != nil {
		return nil, err
	}
	if dir == "" {
		return v, nil
	}

	watcher, err := watchDir(dir, v.reload, v.log)
	if err != nil {
		return nil, fmt.Errorf("failed to start template watcher: %w", err)
	}
	v.watcher = watcher
	return v, nil
}

func (v *Views) RenderTemplate(name string, data any) ([]byte, error) {
	v.mu.RLock()
	templates := v.templates
	v.mu.RUnlock()

	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, name, data)
	return buf.Bytes(), err
}

func (v *Views) Close() error {
	if v.watcher == nil {
		return nil
	}
	return v.watcher.Close()
}

func (v *Views) reload() {
	if err := v.load(); err != nil {
		v.log.Error("failed to reload templates; keeping previous set", "dir", v.dir, "error", err)
	}
}

func (v *Views) load() error {
	templates, err := template.ParseFS(embedded, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse embedded templates: %w", err)
	}

	if v.dir != "" {
		matches, err := filepath.Glob(filepath.Join(v.dir, "*.html"))
		if err != nil {
			return err
		}
		if len(matches) > 0 {
			templates, err = templates.ParseFiles(matches...)
			if err != nil {
				return fmt.Errorf("failed to parse templates from '%s': %w", v.dir, err)
			}
		}
	}

	v.mu.Lock()
	v.templates = templates
	v.mu.Unlock()
	v.log.Debug("loaded templates", "dir", v.dir)
	return nil
}
