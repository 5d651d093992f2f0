// Package listener runs the inbound storage receiver that terminates
// C-MOVE retrieves. One listener exists per process, bound to a fixed
// port and AE title; retrieve operations take turns owning it.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/caio-sobreiro/dicomnet/server"
	"github.com/caio-sobreiro/dicomnet/services"
	"github.com/caio-sobreiro/dicomnet/types"
	"github.com/sirupsen/logrus"

	"pacsgo/pacs"
)

// Config identifies the receiving application entity.
type Config struct {
	AETitle string
	Port    int
	Logger  *logrus.Logger
}

// Option tunes a Manager.
type Option func(*Manager)

// WithLocker replaces the serialization lock. Retrieves across processes
// sharing one listener port can pass a file-backed lock here.
func WithLocker(l sync.Locker) Option {
	return func(m *Manager) {
		m.mu = l
	}
}

// Manager hands the storage listener to one retrieve at a time. The
// lock is held from Acquire until Release, so concurrent retrieves
// queue up rather than fight over the port.
type Manager struct {
	cfg Config
	mu  sync.Locker
	log *logrus.Logger
}

// NewManager returns a manager for the configured receiving AE.
func NewManager(cfg Config, opts ...Option) *Manager {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{cfg: cfg, mu: &sync.Mutex{}, log: log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire takes ownership of the listener, binds the port and starts
// accepting associations. Incoming datasets land in outputDir. The
// caller must Release the returned listener.
func (m *Manager) Acquire(ctx context.Context, outputDir string) (pacs.Listener, error) {
	m.mu.Lock()

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(m.cfg.Port))
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: port %d: %v", pacs.ErrListenerBindFailed, m.cfg.Port, err)
	}

	registry := services.NewRegistry()
	handler := newStoreHandler(outputDir, m.log)
	registry.RegisterHandler(types.CStoreRQ, handler)
	registry.RegisterHandler(types.CEchoRQ, handler)

	srv := server.New(m.cfg.AETitle, registry,
		server.WithLogger(slog.New(slog.NewJSONHandler(m.log.Writer(), nil))))

	serveCtx, cancel := context.WithCancel(ctx)
	active := &activeListener{
		manager:   m,
		aeTitle:   m.cfg.AETitle,
		outputDir: outputDir,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go func() {
		defer close(active.done)
		if err := srv.Serve(serveCtx, ln); err != nil {
			m.log.WithError(err).Warn("storage listener stopped with error")
		}
	}()

	m.log.WithFields(logrus.Fields{
		"ae_title":   m.cfg.AETitle,
		"port":       m.cfg.Port,
		"output_dir": outputDir,
	}).Info("storage listener acquired")
	return active, nil
}

// activeListener is the listener between Acquire and Release.
type activeListener struct {
	manager   *Manager
	aeTitle   string
	outputDir string
	cancel    context.CancelFunc
	done      chan struct{}

	releaseOnce sync.Once
}

func (l *activeListener) AETitle() string   { return l.aeTitle }
func (l *activeListener) OutputDir() string { return l.outputDir }

// Ready reports whether the listener is still accepting associations.
func (l *activeListener) Ready() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Release stops accepting, waits for in-flight associations to finish
// and returns the listener to the manager.
func (l *activeListener) Release() error {
	l.releaseOnce.Do(func() {
		l.cancel()
		<-l.done
		l.manager.mu.Unlock()
		l.manager.log.WithField("ae_title", l.aeTitle).Debug("storage listener released")
	})
	return nil
}
