package resources

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 500 * time.Millisecond

// watchDir calls callback after changes in directory settle. Closing the
// returned watcher stops both goroutines.
func watchDir(
	directory string,
	callback func(),
	log *slog.Logger,
) (
	*fsnotify.Watcher,
	error,
) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	err = watcher.Add(directory)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}

	reload := make(chan struct{})
	go scheduleReload(reload, callback)
	go handleWatcher(watcher, reload, log)
	return watcher, nil
}

func handleWatcher(
	watcher *fsnotify.Watcher,
	reload chan<- struct{},
	log *slog.Logger,
) {
	defer close(reload)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) ||
				event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				reload <- struct{}{}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("resource watcher error", "error", err)
		}
	}
}

func scheduleReload(reload <-chan struct{}, callback func()) {
	var timer *time.Timer = nil
	var c <-chan time.Time = nil
	for {
		select {
		case _, ok := <-reload:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				return
			}
			if timer != nil {
				timer.Reset(reloadDelay)
			} else {
				timer = time.NewTimer(reloadDelay)
				c = timer.C
			}

		case <-c:
			c = nil
			timer = nil
			callback()
		}
	}
}
