// Package config provides configuration management for the transport
// selection daemon.
//
// Settings are read through viper from $HOME/.go-apitransport/config.yaml,
// or from the file passed with --config. A missing default file is created
// with the built-in defaults on first start. Library code should take a
// typed *Config from NewConfigFromViper instead of reading viper keys.
//
// # Keys
//
//   - log.level: debug, info, warn or error
//   - direct.timeout: round trip timeout of the direct transport
//   - relay.ipc_url, relay.timeout, relay.rate_limit, relay.burst: relay
//     transport through the tunnel daemon
//   - status.ipc_url, status.reconnect_interval: tunnel status subscription
//   - probe.url, probe.interval: optional periodic request through the
//     selected transport
//   - metrics.address: Prometheus listener, empty disables it
package config
