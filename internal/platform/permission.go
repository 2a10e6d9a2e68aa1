package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"
	"github.com/ncruces/zenity"
)

const (
	appName        = "limetuna"
	grantsFileName = "permissions.json"
)

type grants struct {
	Microphone bool `json:"microphone"`
}

// DialogPermission asks the desktop user for microphone access and remembers
// the answer on disk.
type DialogPermission struct {
	path   string
	notify bool
	log    *slog.Logger

	ask    func(prompt string) (bool, error)
	notice func(title, message string) error

	mu      sync.Mutex
	granted bool
	asking  bool
	waiters []func(bool)
}

// PermissionOptions configures DialogPermission. An empty Path selects
// <user config dir>/limetuna/permissions.json.
type PermissionOptions struct {
	Path           string
	NotifyOnDenied bool
}

func NewDialogPermission(opts PermissionOptions, log *slog.Logger) (*DialogPermission, error) {
	if log == nil {
		log = slog.Default()
	}
	path := opts.Path
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		path = filepath.Join(dir, appName, grantsFileName)
	}

	p := &DialogPermission{
		path:   path,
		notify: opts.NotifyOnDenied,
		log:    log,
		ask:    askQuestion,
		notice: func(title, message string) error { return beeep.Notify(title, message, "") },
	}
	stored, err := loadGrants(path)
	if err != nil {
		log.Warn("ignoring unreadable permission grants", "path", path, "error", err)
	}
	p.granted = stored.Microphone
	return p, nil
}

func (p *DialogPermission) HasCapturePermission() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

// RequestCapturePermission shows at most one dialog at a time. Requests made
// while a dialog is open receive the same answer.
func (p *DialogPermission) RequestCapturePermission(done func(granted bool)) {
	p.mu.Lock()
	if p.granted {
		p.mu.Unlock()
		go done(true)
		return
	}
	p.waiters = append(p.waiters, done)
	if p.asking {
		p.mu.Unlock()
		return
	}
	p.asking = true
	p.mu.Unlock()

	go p.prompt()
}

func (p *DialogPermission) prompt() {
	granted, err := p.ask("Allow limetuna to use the microphone for speech recognition?")
	if err != nil {
		p.log.Warn("permission dialog failed", "error", err)
		granted = false
	}

	if err := saveGrants(p.path, grants{Microphone: granted}); err != nil {
		p.log.Warn("failed to persist permission grant", "path", p.path, "error", err)
	}
	if !granted && p.notify {
		if err := p.notice(appName, "Microphone access was denied"); err != nil {
			p.log.Warn("failed to show notification", "error", err)
		}
	}

	p.mu.Lock()
	p.granted = granted
	p.asking = false
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, done := range waiters {
		done(granted)
	}
}

func askQuestion(prompt string) (bool, error) {
	err := zenity.Question(prompt,
		zenity.Title(appName),
		zenity.OKLabel("Allow"),
		zenity.CancelLabel("Deny"),
	)
	if errors.Is(err, zenity.ErrCanceled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func loadGrants(path string) (grants, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return grants{}, nil
	}
	if err != nil {
		return grants{}, err
	}
	var out grants
	if err := json.Unmarshal(data, &out); err != nil {
		return grants{}, err
	}
	return out, nil
}

func saveGrants(path string, g grants) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
