package authsync

import (
	"net/http"
	"net/http/cookiejar"

	"go.uber.org/zap"

	"github.com/driftlock/authsync/cache"
	"github.com/driftlock/authsync/realtime"
)

// Builder assembles a Manager. A Builder is single-use: Build consumes it.
type Builder struct {
	config Config

	logger     *zap.Logger
	httpClient *http.Client
	prefs      PreferenceStore
	hub        *SignalHub

	built bool
}

// New starts a Builder with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBaseURL sets the REST API origin.
func (b *Builder) WithBaseURL(u string) *Builder {
	b.config.HTTP.BaseURL = u
	return b
}

// WithRealtimeURL sets the WebSocket endpoint. Leaving it empty disables
// the realtime layer; room operations then return ErrRealtimeDisabled.
func (b *Builder) WithRealtimeURL(u string) *Builder {
	b.config.Realtime.URL = u
	return b
}

// WithHTTPClient supplies the HTTP client. A cookie jar is attached if the
// client has none, since the credential lives in HTTP-only cookies.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithLogger supplies the logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.logger = log
	return b
}

// WithPreferenceStore supplies durable client-side preference storage.
func (b *Builder) WithPreferenceStore(ps PreferenceStore) *Builder {
	b.prefs = ps
	return b
}

// WithSignalHub supplies a shared hub so other components can subscribe
// to process-wide signals. Defaults to a hub owned by the Manager.
func (b *Builder) WithSignalHub(h *SignalHub) *Builder {
	b.hub = h
	return b
}

// WithHooks sets the application callbacks.
func (b *Builder) WithHooks(h HooksConfig) *Builder {
	b.config.Hooks = h
	return b
}

// Build validates the configuration and wires the Manager together:
// response cache, signal hub, and (when configured) the realtime
// connection with its event handlers. Build performs no I/O.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	b.built = true

	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}

	client := b.httpClient
	if client == nil {
		client = &http.Client{Timeout: b.config.HTTP.Timeout}
	}
	if client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		client.Jar = jar
	}

	prefs := b.prefs
	if prefs == nil {
		prefs = &MemoryPreferenceStore{}
	}

	hub := b.hub
	ownHub := hub == nil
	if hub == nil {
		hub = NewSignalHub(b.config.Signals)
	}

	m := &Manager{
		config:   b.config,
		log:      log,
		http:     client,
		cache:    cache.New[*Response](b.config.Cache.TTL),
		hub:      hub,
		ownHub:   ownHub,
		metrics:  NewMetrics(),
		prefs:    prefs,
		watchers: make(map[uint64]chan *Session),
		done:     make(chan struct{}),
	}

	if b.config.Realtime.URL != "" {
		rtCfg := b.config.Realtime
		if rtCfg.HTTPClient == nil {
			rtCfg.HTTPClient = client
		}
		m.conn = realtime.New(rtCfg, log.Named("realtime"))
		m.conn.Initialize()
		m.wireRealtime()
	}
	m.wireSignals()

	return m, nil
}
