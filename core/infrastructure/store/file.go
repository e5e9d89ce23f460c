package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
)

const reloadDebounce = 250 * time.Millisecond

// widgetFile is the on-disk layout of a widget file
type widgetFile struct {
	Widgets []*domain.WidgetDefinition `yaml:"widgets"`
}

// FileStore serves widgets from a YAML file or a directory of YAML files
type FileStore struct {
	*MemoryStore

	path     string
	log      logging.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	onReload func(count int, err error)
}

// FileOption configures a FileStore
type FileOption func(*FileStore)

// WithReloadHook is called after every reload attempt
func WithReloadHook(fn func(count int, err error)) FileOption {
	return func(s *FileStore) {
		s.onReload = fn
	}
}

// NewFileStore loads every widget under path
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	widgets, err := LoadWidgetFiles(path)
	if err != nil {
		return nil, err
	}
	mem, err := NewMemoryStore(widgets)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		MemoryStore: mem,
		path:        path,
		log:         logging.New("store:file"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log.Debugf("Loaded %d widget(s) from %s", mem.Len(), path)
	return s, nil
}

// Watch reloads the store whenever a widget file changes. A reload that fails
// validation leaves the previous definitions in place.
func (s *FileStore) Watch() error {
	if s.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop()

	s.log.Infof("Watching %s for widget changes", s.path)
	return nil
}

func (s *FileStore) loop() {
	defer s.wg.Done()

	var debounce *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !isWidgetFile(event.Name) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			s.Reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warnf("Watcher error: %v", err)
		}
	}
}

// Reload re-reads the files and swaps the definitions if they are all valid
func (s *FileStore) Reload() error {
	widgets, err := LoadWidgetFiles(s.path)
	var index map[string]*domain.WidgetDefinition
	if err == nil {
		index, err = indexWidgets(widgets)
	}
	if err != nil {
		s.log.Warnf("Reload failed, keeping current widgets: %v", err)
	} else {
		s.replace(index)
		s.log.Infof("Reloaded %d widget(s)", len(index))
	}
	if s.onReload != nil {
		s.onReload(len(index), err)
	}
	return err
}

// Close stops the watcher
func (s *FileStore) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	s.watcher = nil
	return err
}

func isWidgetFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// LoadWidgetFiles reads widgets from a YAML file or from every YAML file in a
// directory, in name order
func LoadWidgetFiles(path string) ([]*domain.WidgetDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && isWidgetFile(e.Name()) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	var widgets []*domain.WidgetDefinition
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		var wf widgetFile
		if err := yaml.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		widgets = append(widgets, wf.Widgets...)
	}
	return widgets, nil
}
