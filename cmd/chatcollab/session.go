package main

import (
	"context"
	"log/slog"
	"net/http"

	"chatcollab/internal/eventloop"
	"chatcollab/internal/httpapi"
	"chatcollab/internal/metrics"
	"chatcollab/internal/roster"
	"chatcollab/internal/syncclient"
	"chatcollab/internal/transport/sse"
	"chatcollab/internal/transport/ws"
)

// session wires the sync client to the configured server, transport and renderer.
type session struct {
	cfg      appConfig
	api      *httpapi.Client
	loop     *eventloop.Loop
	client   *syncclient.Client
	logger   *slog.Logger
	username string
	agents   []roster.Agent
}

func newSession(cfg appConfig, renderer syncclient.Renderer, logger *slog.Logger) (*session, []string, error) {
	var notes []string

	agents, err := loadAgents(cfg)
	if err != nil {
		return nil, nil, err
	}
	username, err := roster.ResolveUsername(cfg.username, cfg.session, syncclient.DefaultUsername, roster.NameCache{Path: cfg.nameCachePath})
	if err != nil {
		logger.Warn("username cache unavailable", "error", err)
		notes = append(notes, "username cache unavailable: "+err.Error())
	}

	api := &httpapi.Client{
		BaseURL:   cfg.server,
		SessionID: cfg.session,
		Timeout:   cfg.requestTimeout,
	}

	var (
		transport syncclient.Transport
		sender    syncclient.Sender = api
	)
	switch cfg.transport {
	case transportWS:
		wsURL, err := api.WebSocketURL()
		if err != nil {
			return nil, nil, err
		}
		t := ws.New(wsURL, api.Origin(), cfg.session, logger)
		transport, sender = t, t
	default:
		// The stream stays open indefinitely, so the client carries no overall timeout.
		transport = sse.New(api.StreamURL(), &http.Client{}, logger)
	}

	loop := eventloop.New()
	client, err := syncclient.New(syncclient.Config{
		Transport:      transport,
		History:        api,
		Sender:         sender,
		Renderer:       renderer,
		Loop:           loop,
		Logger:         logger,
		Username:       username,
		Agents:         roster.Names(agents),
		RetryDelay:     cfg.retryDelay,
		RequestTimeout: cfg.requestTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("session configured",
		"server", cfg.server,
		"session", cfg.session,
		"transport", cfg.transport,
		"username", username,
		"agents", roster.Names(agents),
	)
	return &session{
		cfg:      cfg,
		api:      api,
		loop:     loop,
		client:   client,
		logger:   logger,
		username: username,
		agents:   agents,
	}, notes, nil
}

// start runs the event loop and, when configured, the metrics endpoint until ctx ends, then
// opens the connection.
func (s *session) start(ctx context.Context) {
	go func() {
		_ = s.loop.Run(ctx)
	}()
	if s.cfg.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, s.cfg.metricsAddr, s.logger); err != nil {
				s.logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}
	s.client.Connect()
}

// stop closes the connection and waits for the loop to process it.
func (s *session) stop(ctx context.Context) {
	s.client.Disconnect()
	_ = s.loop.Do(ctx, func() {})
}
