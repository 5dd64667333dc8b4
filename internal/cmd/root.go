// Package cmd implements the convoy command line: deploy, teardown,
// restart, redeploy, status.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"convoy/internal/config"
	"convoy/internal/deploy"
	"convoy/internal/dns"
	"convoy/internal/gate"
	"convoy/internal/probe"
	"convoy/internal/proxy"
	"convoy/internal/routing"
	"convoy/internal/runtime"
)

var (
	cfgPath        string
	descriptorPath string
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:           "convoy",
	Short:         "Dependency-ordered service deployment with compiled proxy routing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(setupLogging)
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to convoy config file")
	rootCmd.PersistentFlags().StringVarP(&descriptorPath, "file", "f", "convoy.yml", "path to deployment descriptor")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func setupLogging() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// loadInputs reads the tool config and the deployment descriptor.
func loadInputs() (config.Config, *config.Descriptor, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, nil, err
	}
	desc, err := config.LoadDescriptor(descriptorPath)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, desc, nil
}

// buildDriver wires the deployment driver from config and descriptor.
func buildDriver(cfg config.Config, desc *config.Descriptor) (*deploy.Driver, error) {
	networkName := desc.Network
	if networkName == "" {
		networkName = cfg.Network
	}
	rt, err := runtime.NewDockerRuntime(networkName, log.Logger)
	if err != nil {
		return nil, err
	}

	prober := probe.NewTCPProber(log.Logger)
	g := gate.New(prober, desc.ProbeInterval(), desc.GateTimeout(), log.Logger)
	compiler := routing.NewCompiler(desc.Entrypoints.HTTPSPort, log.Logger)
	applier := proxy.NewFileApplier(cfg.ProxyConfigPath, log.Logger)
	driver := deploy.NewDriver(rt, g, compiler, applier, log.Logger)

	if cfg.Cloudflare.Enabled {
		if desc.Entrypoints.Host == "" {
			return nil, fmt.Errorf("cloudflare integration enabled but descriptor declares no entrypoint host")
		}
		mgr, err := dns.NewManager(cfg.Cloudflare, cfg.ServerAddress, log.Logger)
		if err != nil {
			return nil, err
		}
		driver.SetRegistrar(mgr, desc.Entrypoints.Host)
	}

	return driver, nil
}
