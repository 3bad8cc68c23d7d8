package permissions

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// PolicyApplier receives reloaded policies
type PolicyApplier interface {
	ApplyPolicy(p *Policy) error
}

// PolicyWatcher re-applies a policy file whenever it changes on disk.
// A file that fails to load is logged and the active rules stay in place.
type PolicyWatcher struct {
	path    string
	applier PolicyApplier
	logger  *logrus.Logger
	watcher *fsnotify.Watcher
}

// NewPolicyWatcher starts watching the directory containing path. Watching
// the directory catches editors that replace the file by rename.
func NewPolicyWatcher(path string, applier PolicyApplier, logger *logrus.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &PolicyWatcher{path: abs, applier: applier, logger: logger, watcher: w}, nil
}

// Run processes file events until ctx is cancelled.
func (pw *PolicyWatcher) Run(ctx context.Context) error {
	defer pw.watcher.Close()
	log := pw.logger.WithField("policy_file", pw.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != pw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			pw.reload(log)
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Policy watcher error")
		}
	}
}

func (pw *PolicyWatcher) reload(log *logrus.Entry) {
	policy, err := LoadPolicyFile(pw.path)
	if err != nil {
		log.WithError(err).Error("Failed to reload permission policy, keeping previous rules")
		return
	}
	if err := pw.applier.ApplyPolicy(policy); err != nil {
		log.WithError(err).Error("Failed to apply permission policy, keeping previous rules")
		return
	}
	log.WithField("rules", len(policy.Rules)).Info("Permission policy reloaded")
}
