package main

import (
	"fmt"
	"os"

	"github.com/go-i2p/go-apitransport/lib/config"
	"github.com/go-i2p/go-apitransport/lib/monitor"
	"github.com/go-i2p/go-apitransport/lib/tunnel"
	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var log = logger.GetGoI2PLogger()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "go-apitransport",
		Short: "Keeps API traffic on a working path while the tunnel changes state",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.InitConfig()
		},
		SilenceUsage: true,
		RunE:         runDaemon,
	}
	root.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default is $HOME/"+config.BaseDirName+"/config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Follow tunnel state and select transports (default)",
		RunE:  runDaemon,
	})
	root.AddCommand(newRouteCmd())
	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(config.NewConfigFromViper())
		},
	})
	return root
}

func newRouteCmd() *cobra.Command {
	var tunnelState, deviceState string
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Print the transport order for a tunnel and device state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := tunnel.ParseTunnelState(tunnelState)
			if err != nil {
				return err
			}
			ds, err := tunnel.ParseDeviceState(deviceState)
			if err != nil {
				return err
			}
			for i, p := range monitor.DesiredPaths(ts, ds) {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tunnelState, "tunnel", tunnel.Disconnected.String(), "tunnel state")
	cmd.Flags().StringVar(&deviceState, "device", tunnel.LoggedIn.String(), "device state")
	return cmd
}
