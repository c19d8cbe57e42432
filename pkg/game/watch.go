package game

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchContent starts an fsnotify watcher on the content directory.
// When a content file changes it reloads and validates the full content
// set; a load or validation failure keeps the previous content live.
// Returns a stop function, or a no-op if the watcher could not start.
func (g *Game) WatchContent() func() {
	if g.Conf.ContentDir == "" {
		return func() {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WARNING: Could not start content watcher: %v", err)
		return func() {}
	}

	tracked := map[string]bool{
		WorldFile:    true,
		MissionsFile: true,
		MailFile:     true,
	}

	done := make(chan struct{})
	go func() {
		defer watcher.Close()
		// Editors fire several events per save; debounce before reloading.
		var pending *time.Timer
		for {
			select {
			case <-done:
				if pending != nil {
					pending.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !tracked[filepath.Base(event.Name)] {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(250*time.Millisecond, g.reloadContent)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Content watcher error: %v", err)
			}
		}
	}()

	if err := watcher.Add(g.Conf.ContentDir); err != nil {
		log.Printf("WARNING: Could not watch content directory %s: %v", g.Conf.ContentDir, err)
		close(done)
		return func() {}
	}
	log.Printf("Watching content directory for changes: %s", g.Conf.ContentDir)

	var stopped bool
	return func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}
}

func (g *Game) reloadContent() {
	content, err := LoadContent(g.Conf.ContentDir)
	if err != nil {
		log.Printf("GAME: content reload failed, keeping previous: %v", err)
		return
	}
	if err := CheckContent(content.World, content.Missions, content.Mail); err != nil {
		log.Printf("GAME: content reload rejected, keeping previous: %v", err)
		return
	}
	g.ReplaceContent(content)
}
