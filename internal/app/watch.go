package app

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/fsnotify/fsnotify"

	"github.com/bnema/hearth/internal/domain"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 2 * time.Second

// RunHandler receives the outcome of every run performed by Watch.
type RunHandler func(report domain.Report, err error)

// Watch runs the bootstrap once, then again every time the configuration file
// or the inputs file changes, until ctx is done. Each run builds a fresh kernel
// so edits to any setting take effect.
func Watch(ctx context.Context, opts Options, debounce time.Duration, handle RunHandler) error {
	log := zerowrap.FromCtx(ctx)
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	for {
		sources := runOnce(ctx, opts, handle)

		err := waitForChange(ctx, sources, debounce)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return log.WrapErr(err, "failed to watch configuration")
		}
		log.Info().Strs("files", sources).Msg("configuration changed, re-running bootstrap")
	}
}

func runOnce(ctx context.Context, opts Options, handle RunHandler) []string {
	k, err := NewKernel(ctx, opts)
	if err != nil {
		handle(domain.Report{}, err)
		// keep watching the file viper would read so fixing it triggers a run
		return watchedFiles(configFileFor(opts), opts.InputsPath)
	}
	defer func() { _ = k.Close() }()

	report, err := k.Run(ctx)
	handle(report, err)
	return k.sources
}

// watchedFiles lists the files whose edits trigger a re-run.
func watchedFiles(configFile, inputsPath string) []string {
	if inputsPath == "" {
		inputsPath = DefaultInputsPath
	}
	files := []string{filepath.Clean(inputsPath)}
	if configFile != "" {
		if abs, err := filepath.Abs(configFile); err == nil {
			configFile = abs
		}
		files = append(files, filepath.Clean(configFile))
	}
	return files
}

// waitForChange blocks until one of files is written, created, removed or
// renamed and no further event arrived for debounce. Parent directories are
// watched because editors and provisioning tools replace files by rename.
func waitForChange(ctx context.Context, files []string, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	targets := make(map[string]struct{}, len(files))
	dirs := make(map[string]struct{})
	for _, f := range files {
		targets[f] = struct{}{}
		dirs[filepath.Dir(f)] = struct{}{}
	}

	watching := 0
	for dir := range dirs {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := w.Add(dir); err != nil {
			return err
		}
		watching++
	}
	if watching == 0 {
		return errors.New("none of the watched directories exist")
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if _, ok := targets[filepath.Clean(event.Name)]; !ok {
				continue
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return err
		case <-fire:
			return nil
		}
	}
}
