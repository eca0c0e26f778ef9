package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-i2p/go-apitransport/lib/apiclient"
	"github.com/go-i2p/go-apitransport/lib/config"
	"github.com/go-i2p/go-apitransport/lib/jsonrpc"
	"github.com/go-i2p/go-apitransport/lib/monitor"
	"github.com/go-i2p/go-apitransport/lib/transport"
	"github.com/go-i2p/go-apitransport/lib/transport/direct"
	"github.com/go-i2p/go-apitransport/lib/transport/relay"
	"github.com/go-i2p/go-apitransport/lib/tunnel"
	"github.com/go-i2p/go-apitransport/lib/util"
	"github.com/go-i2p/go-apitransport/lib/util/signals"
	"github.com/go-i2p/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.NewConfigFromViper()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.ApplyLogLevel(cfg.Log.Level); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mon, source, err := buildMonitor(cfg)
	if err != nil {
		return err
	}
	util.RegisterCloser(util.CloserFunc(func() error {
		mon.Close()
		return nil
	}))

	signals.RegisterPreShutdownHandler(mon.Close)
	signals.RegisterInterruptHandler(signals.Handler(cancel))
	signals.RegisterReloadHandler(reloadLogLevel)
	config.Watch(applyLogLevel)
	go signals.Handle(ctx)

	if cfg.Metrics.Address != "" {
		startStatusServer(cfg.Metrics.Address, mon)
	}
	go source.Run(ctx)
	if cfg.Probe.URL != "" {
		go probe(ctx, apiclient.New(mon), cfg.Probe)
	}

	log.WithFields(logger.Fields{
		"at":        "runDaemon",
		"reason":    "started",
		"relay_ipc": cfg.Relay.IPCURL,
		"metrics":   cfg.Metrics.Address,
	}).Debug("transport selection running")

	<-ctx.Done()
	util.CloseAll()
	return nil
}

// buildMonitor wires both transports, the registry and the status source.
func buildMonitor(cfg *config.Config) (*monitor.Monitor, *tunnel.RemoteSource, error) {
	registry := transport.NewRegistry()
	directCandidate := transport.NewCandidate(direct.New(&direct.Config{Timeout: cfg.Direct.Timeout}))

	relayClient, err := jsonrpc.NewClient(cfg.Relay.IPCURL)
	if err != nil {
		return nil, nil, err
	}
	relayTransport, err := relay.New(relayClient, &relay.Config{
		Timeout:   cfg.Relay.Timeout,
		RateLimit: cfg.Relay.RateLimit,
		Burst:     cfg.Relay.Burst,
	})
	if err != nil {
		return nil, nil, err
	}
	tunneledCandidate := transport.NewCandidate(relayTransport)

	statusClient, err := jsonrpc.NewClient(cfg.Status.IPCURL)
	if err != nil {
		return nil, nil, err
	}
	source := tunnel.NewRemoteSource(statusClient, cfg.Status.ReconnectInterval)

	return monitor.New(registry, source, directCandidate, tunneledCandidate), source, nil
}

func reloadLogLevel() {
	if err := config.Reload(); err != nil {
		log.WithFields(logger.Fields{
			"at":     "reloadLogLevel",
			"reason": "reload_failed",
			"error":  err.Error(),
		}).Error("keeping previous configuration")
		return
	}
	applyLogLevel()
}

func applyLogLevel() {
	cfg := config.NewConfigFromViper()
	if err := config.ApplyLogLevel(cfg.Log.Level); err != nil {
		log.WithFields(logger.Fields{
			"at":     "applyLogLevel",
			"reason": "invalid_log_level",
			"error":  err.Error(),
		}).Error("keeping previous log level")
	}
}

type statusReport struct {
	TunnelState  string   `json:"tunnel_state"`
	DeviceState  string   `json:"device_state"`
	Transports   []string `json:"transports"`
	TimeoutCount int      `json:"timeout_count"`
}

// startStatusServer serves /metrics and /status until CloseAll.
func startStatusServer(addr string, mon *monitor.Monitor) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := mon.Status()
		report := statusReport{
			TunnelState:  status.Tunnel.String(),
			DeviceState:  status.Device.String(),
			Transports:   []string{},
			TimeoutCount: mon.TimeoutCount(),
		}
		for _, c := range mon.Transports() {
			report.Transports = append(report.Transports, c.String())
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	})

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(logger.Fields{
				"at":      "startStatusServer",
				"reason":  "listen_failed",
				"address": addr,
				"error":   err.Error(),
			}).Error("status server stopped")
		}
	}()
	util.RegisterCloser(util.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return oops.Wrapf(err, "status server shutdown")
		}
		return nil
	}))
}

// probe sends a request through the selected transport every interval so
// that a failing path is noticed without other traffic.
func probe(ctx context.Context, client *apiclient.Client, cfg config.ProbeConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	req := &transport.Request{Method: http.MethodGet, URL: cfg.URL}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		resp, err := client.Do(ctx, req)
		if err != nil {
			log.WithFields(logger.Fields{
				"at":     "probe",
				"reason": "probe_failed",
				"url":    cfg.URL,
				"error":  err.Error(),
			}).Warn("API probe failed")
			continue
		}
		log.WithFields(logger.Fields{
			"at":          "probe",
			"reason":      "probe_succeeded",
			"status_code": resp.StatusCode,
		}).Debug("API probe completed")
	}
}
