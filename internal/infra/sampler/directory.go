package sampler

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/corona10/goimagehash"
	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/domain/screen"
)

// DirectoryConfig represents the configuration for DirectorySampler.
type DirectoryConfig struct {
	Dir        string `mapstructure:"dir" validate:"required"`
	DebounceMs int    `mapstructure:"debounce_ms" default:"200" validate:"gte=0,lte=5000"`
}

// DirectorySampler watches a capture directory and keeps the fingerprint of
// the newest screenshot dropped into it.
type DirectorySampler struct {
	config  DirectoryConfig
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	latest *screen.Sample

	done chan struct{}
}

// NewDirectorySampler creates a sampler over the configured capture
// directory. Images already present are fingerprinted at startup so a
// restart keeps its baseline.
func NewDirectorySampler(settings map[string]any) (*DirectorySampler, error) {
	var config DirectoryConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	if info, err := os.Stat(config.Dir); err != nil {
		return nil, errors.Wrapf(err, "capture directory %s", config.Dir)
	} else if !info.IsDir() {
		return nil, errors.Newf("capture path is not a directory: %s", config.Dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}
	if err := watcher.Add(config.Dir); err != nil {
		_ = watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", config.Dir)
	}

	s := &DirectorySampler{
		config:  config,
		watcher: watcher,
		done:    make(chan struct{}),
	}

	if path, ok := newestImage(config.Dir); ok {
		s.ingest(path)
	}

	go s.watchLoop()
	zlog.Info().Msgf("directory sampler watching: dir=%s", config.Dir)
	return s, nil
}

// Sample returns the newest observed screenshot. It never blocks.
func (s *DirectorySampler) Sample() (screen.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return screen.Sample{}, ErrNoSample
	}
	return *s.latest, nil
}

// Close stops the watcher.
func (s *DirectorySampler) Close() error {
	close(s.done)
	return s.watcher.Close()
}

func (s *DirectorySampler) watchLoop() {
	debounce := time.Duration(s.config.DebounceMs) * time.Millisecond

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !isImage(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Capture tools write in chunks; give the file a moment to
			// settle before decoding. A partial decode is retried on the
			// next write event.
			if debounce > 0 {
				select {
				case <-time.After(debounce):
				case <-s.done:
					return
				}
			}
			s.ingest(event.Name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			zlog.Warn().Msgf("sampler watch error: %v", err)
		}
	}
}

// ingest fingerprints one image file and publishes it as the latest sample.
func (s *DirectorySampler) ingest(path string) {
	f, err := os.Open(path)
	if err != nil {
		zlog.Debug().Msgf("sampler: open failed: path=%s err=%v", path, err)
		return
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		zlog.Debug().Msgf("sampler: decode failed: path=%s err=%v", path, err)
		return
	}

	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		zlog.Warn().Msgf("sampler: hash failed: path=%s err=%v", path, err)
		return
	}

	sample := &screen.Sample{
		Fingerprint: screen.Fingerprint{Hash: hash, At: time.Now()},
		ImagePath:   path,
	}

	s.mu.Lock()
	s.latest = sample
	s.mu.Unlock()
	zlog.Debug().Msgf("sampler: new sample: path=%s hash=%016x", path, hash.GetHash())
}

// newestImage finds the most recently modified image in a directory.
func newestImage(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || !isImage(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	return newest, newest != ""
}

func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}
