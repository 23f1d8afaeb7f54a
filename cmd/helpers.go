package cmd

import (
	"errors"
	"fmt"

	"github.com/ziadkadry99/team-sync/internal/config"
	"github.com/ziadkadry99/team-sync/internal/corpus"
	"github.com/ziadkadry99/team-sync/internal/model"
)

// errSyncFailed marks a run where at least one operation ended fatal or
// blocked; it maps to exit code 2.
var errSyncFailed = errors.New("at least one operation failed or was blocked")

// setupError marks an unrecoverable setup problem (missing credentials,
// corpus not found, bad config); it maps to exit code 3.
type setupError struct{ err error }

func (e *setupError) Error() string { return e.err.Error() }
func (e *setupError) Unwrap() error { return e.err }

func setupErrf(format string, args ...any) error {
	return &setupError{err: fmt.Errorf(format, args...)}
}

// ExitCode maps an Execute error onto the documented exit codes: 1 for
// corpus parse/validation errors, 2 for failed or blocked operations, 3
// for setup errors, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var parse *corpus.ParseError
	var invalid *corpus.Errors
	if errors.As(err, &parse) || errors.As(err, &invalid) {
		return 1
	}
	if errors.Is(err, errSyncFailed) {
		return 2
	}
	var setup *setupError
	if errors.As(err, &setup) {
		return 3
	}
	return 1
}

// loadConfig loads and validates the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, &setupError{err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &setupError{err: err}
	}
	return cfg, nil
}

// loadModel loads, validates and materialises the corpus at src.
func loadModel(src string) (*model.Model, error) {
	c, err := corpus.Load(src)
	if err != nil {
		var parse *corpus.ParseError
		if errors.As(err, &parse) {
			return nil, err
		}
		return nil, setupErrf("loading corpus from %s: %w", src, err)
	}
	if err := corpus.Validate(c); err != nil {
		return nil, err
	}
	return model.New(c), nil
}
