package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/vnet"
	"github.com/spf13/cobra"

	"github.com/saintparish4/relay/internal/allocation"
	"github.com/saintparish4/relay/internal/config"
	"github.com/saintparish4/relay/internal/monitor"
	"github.com/saintparish4/relay/internal/relay"
	"github.com/saintparish4/relay/pkg/netutil"
)

var (
	cfgFile string
	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "relayd",
		Short:   "TURN relay allocation daemon",
		Long:    "relayd manages TURN relay allocations: per-client relay sockets,\npermissions, channel bindings, and port reservations.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = *loaded
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = logLevel(cfg.LogLevel)
	log := loggerFactory.NewLogger("relayd")

	relayIP := cfg.RelayIP
	if relayIP == "auto" {
		ip, err := netutil.PreferredRelayIP()
		if err != nil {
			return err
		}
		relayIP = ip.String()
		log.Infof("selected relay address %s", relayIP)
	}

	generator, err := buildGenerator(cfg, relayIP)
	if err != nil {
		return err
	}

	var mon *monitor.Server
	manager, err := allocation.NewManager(allocation.ManagerConfig{
		LeveledLogger:    loggerFactory.NewLogger("alloc"),
		AddressGenerator: generator,
		OnEvent: func(e allocation.Event) {
			if mon != nil {
				mon.HandleEvent(e)
			}
		},
	})
	if err != nil {
		return err
	}

	if cfg.Monitor.Enabled {
		mon = monitor.NewServer(monitor.Config{
			Addr:          cfg.Monitor.Address,
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  15 * time.Second,
			LeveledLogger: loggerFactory.NewLogger("monitor"),
		}, manager)
		go func() {
			if err := mon.Start(); err != nil {
				log.Errorf("monitor server failed: %v", err)
			}
		}()
	}

	log.Infof("relayd %s ready: realm %q, listen %s, relay %s", version, cfg.Realm, cfg.ListenAddress, relayIP)

	// The STUN/TURN dispatcher attaches to the manager from here; relayd
	// owns the collaborators' lifecycle.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received signal %v, shutting down", sig)

	if mon != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mon.Shutdown(ctx); err != nil {
			log.Errorf("monitor shutdown: %v", err)
		}
	}

	return manager.Close()
}

func buildGenerator(cfg config.Config, relayIP string) (relay.AddressGenerator, error) {
	net0 := vnet.NewNet(nil) // native operation

	if cfg.PublicIP != "" {
		g := &relay.Static{
			RelayAddress: net.ParseIP(cfg.PublicIP),
			Address:      relayIP,
			Net:          net0,
		}
		return g, g.Validate()
	}

	if cfg.MinPort != 0 {
		g := &relay.PortRange{
			MinPort: cfg.MinPort,
			MaxPort: cfg.MaxPort,
			Address: relayIP,
			Net:     net0,
		}
		return g, g.Validate()
	}

	g := &relay.None{
		Address: relayIP,
		Net:     net0,
	}
	return g, g.Validate()
}

func logLevel(level string) logging.LogLevel {
	switch level {
	case "trace":
		return logging.LogLevelTrace
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
