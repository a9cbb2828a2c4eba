// Package browser is the live document backend. It drives Chrome over the
// DevTools protocol with go-rod, mirrors a page's DOM and edits attributes
// through DOM.setAttributeValue.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"classpane/internal/logging"
)

// Session describes the public metadata for a tracked page.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Target is a page Chrome reports through Target.getTargets.
type Target struct {
	ID       string
	URL      string
	Title    string
	Attached bool
}

type sessionRecord struct {
	meta Session
	page *rod.Page
	doc  *Document
}

// Config holds browser configuration.
type Config struct {
	DebuggerURL       string
	Launch            []string
	Headless          bool
	NavigationTimeout time.Duration
	EchoTimeout       time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 30 * time.Second,
		EchoTimeout:       DefaultEchoTimeout,
	}
}

// GetNavigationTimeout returns the navigation timeout.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// SessionManager owns the Chrome connection and tracks opened pages.
type SessionManager struct {
	cfg        Config
	log        *zap.Logger
	mu         sync.RWMutex
	browser    *rod.Browser
	launched   *launcher.Launcher
	sessions   map[string]*sessionRecord
	controlURL string // WebSocket URL for DevTools
}

// NewSessionManager creates a new session manager. A nil logger uses the
// browser category logger.
func NewSessionManager(cfg Config, log *zap.Logger) *SessionManager {
	if log == nil {
		log = logging.Get(logging.CategoryBrowser)
	}
	return &SessionManager{
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to the configured debugger URL or launches Chrome.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn("stale browser connection, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.sessions = make(map[string]*sessionRecord)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL != "" && !strings.HasPrefix(controlURL, "ws") {
		// http://host:port of a running Chrome
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return fmt.Errorf("resolve debugger url %s: %w", controlURL, err)
		}
		controlURL = u
	}

	if controlURL == "" {
		l := launcher.New().Headless(m.cfg.Headless)
		if len(m.cfg.Launch) > 0 {
			l = l.Bin(m.cfg.Launch[0])
			for _, rawFlag := range m.cfg.Launch[1:] {
				name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
				if hasVal {
					l = l.Set(flags.Flag(name), val)
				} else {
					l = l.Set(flags.Flag(name))
				}
			}
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		m.launched = l
		m.log.Info("launched chrome", zap.String("control_url", u), zap.Bool("headless", m.cfg.Headless))
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	return nil
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

func (m *SessionManager) connected() (*rod.Browser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.browser == nil {
		return nil, errors.New("browser not connected")
	}
	return m.browser, nil
}

// ControlURL returns the WebSocket debugger URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes the documents of all sessions. Pages opened by
// CreateSession are closed; attached pages are left alone. A Chrome that
// was launched by Start is killed.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.sessions {
		if rec.doc != nil {
			_ = rec.doc.Close()
		}
		if rec.page != nil && rec.meta.Status == "active" {
			_ = rec.page.Close()
		}
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil {
		if m.launched != nil {
			err = m.browser.Close()
		}
		m.browser = nil
	}
	if m.launched != nil {
		m.launched.Cleanup()
		m.launched = nil
	}
	m.controlURL = ""
	return err
}

// List returns metadata for all known sessions, oldest first.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		results = append(results, rec.meta)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.Before(results[j].CreatedAt) })
	return results
}

// Targets lists the pages of the connected Chrome.
func (m *SessionManager) Targets(ctx context.Context) ([]Target, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	browser, err := m.connected()
	if err != nil {
		return nil, err
	}
	res, err := proto.TargetGetTargets{}.Call(browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	var out []Target
	for _, info := range res.TargetInfos {
		if info.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		out = append(out, Target{
			ID:       string(info.TargetID),
			URL:      info.URL,
			Title:    info.Title,
			Attached: info.Attached,
		})
	}
	return out, nil
}

// CreateSession opens url in a new page and tracks it.
func (m *SessionManager) CreateSession(ctx context.Context, url string) (*Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	browser, err := m.connected()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := m.navigate(ctx, page, url); err != nil {
		_ = page.Close()
		return nil, err
	}

	meta := m.track(page, url, "active")
	m.log.Info("opened page", zap.String("session", meta.ID), zap.String("url", url))
	return &meta, nil
}

// Attach binds to an existing page by target id.
func (m *SessionManager) Attach(ctx context.Context, targetID string) (*Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	browser, err := m.connected()
	if err != nil {
		return nil, err
	}

	page, err := browser.PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}

	meta := m.track(page, "", "attached")
	m.log.Info("attached to page", zap.String("session", meta.ID), zap.String("target", targetID))
	return &meta, nil
}

func (m *SessionManager) track(page *rod.Page, url, status string) Session {
	now := time.Now()
	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Status:     status,
		CreatedAt:  now,
		LastActive: now,
	}
	if info, err := page.Info(); err == nil {
		meta.URL = info.URL
		meta.Title = info.Title
	}

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page}
	m.mu.Unlock()
	return meta
}

// Page returns the underlying Rod page for a session.
func (m *SessionManager) Page(sessionID string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rec.page, true
}

// UpdateMetadata updates session metadata.
func (m *SessionManager) UpdateMetadata(sessionID string, updater func(Session) Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	rec.meta = updater(rec.meta)
}

// GetSession returns session metadata.
func (m *SessionManager) GetSession(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

// Navigate loads url in the session's page and waits for the load event.
func (m *SessionManager) Navigate(ctx context.Context, sessionID, url string) error {
	page, ok := m.Page(sessionID)
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	if err := m.navigate(ctx, page, url); err != nil {
		return err
	}
	m.UpdateMetadata(sessionID, func(s Session) Session {
		s.URL = url
		s.LastActive = time.Now()
		if info, err := page.Info(); err == nil {
			s.Title = info.Title
		}
		return s
	})
	return nil
}

func (m *SessionManager) navigate(ctx context.Context, page *rod.Page, url string) error {
	p := page.Context(ctx).Timeout(m.cfg.GetNavigationTimeout())
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return nil
}

// Document returns the live document backend of a session, opening it on
// first use. The session keeps ownership; Shutdown closes it.
func (m *SessionManager) Document(ctx context.Context, sessionID string, opts Options) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	if rec.doc != nil {
		return rec.doc, nil
	}
	if opts.EchoTimeout <= 0 {
		opts.EchoTimeout = m.cfg.EchoTimeout
	}
	if opts.Logger == nil {
		opts.Logger = m.log.With(zap.String("session", sessionID))
	}
	doc, err := Open(ctx, rec.page, opts)
	if err != nil {
		return nil, err
	}
	rec.doc = doc
	rec.meta.LastActive = time.Now()
	return doc, nil
}
