package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pubfile"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pubfiled",
	Short: "Static file server with bounded-wait reads",
	Long: `pubfiled serves world-readable files out of per-host directories,
publicfile-style. Every read from a client is bounded by a whole-second
timeout, so slow or silent clients cannot hold a connection open forever.

With an empty address in the configuration it serves a single connection
arriving on stdin/stdout, for use under an inetd-style supervisor.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "pubfile.toml", "path to configuration file")
}

func initLog(config *pubfile.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(config.Global.LogLevel)
	if err != nil {
		log.Warn().Msgf("unknown log level %q, using info", config.Global.LogLevel)
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(cmd *cobra.Command, args []string) error {
	config, err := pubfile.LoadConfig(configPath)
	if err != nil {
		return err
	}
	initLog(config)
	applyEnvCredentials(&config.Server)

	if err := pubfile.DropPrivileges(&config.Server); err != nil {
		return err
	}
	// DropPrivileges left the working directory at the serving root.
	config.Server.RootDir = "."

	server, err := pubfile.NewServer(config)
	if err != nil {
		return err
	}

	if config.Server.Address == "" {
		server.ServeStdio(remoteFromEnv())
		return nil
	}

	if err := server.Listen(); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msgf("shutting down, stats: %+v", server.Stats().Snapshot())
	return server.Stop()
}

// applyEnvCredentials honors the UID and GID environment variables used by
// publicfile-style deployments; the config file wins when both are set.
func applyEnvCredentials(config *pubfile.ServerConfig) {
	if config.Uid == 0 {
		if uid, ok := lookupIntEnv("UID"); ok {
			config.Uid = uid
		}
	}
	if config.Gid == 0 {
		if gid, ok := lookupIntEnv("GID"); ok {
			config.Gid = gid
		}
	}
}

func lookupIntEnv(name string) (int, bool) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Fatal().Msgf("%s must be an integer, got %q", name, value)
	}
	return parsed, true
}

// remoteFromEnv recovers the peer address exported by tcpserver-style
// supervisors, for log lines only.
func remoteFromEnv() string {
	if remote := os.Getenv("TCPREMOTEIP"); remote != "" {
		return remote
	}
	return "stdin"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Msgf("%+v", err)
	}
}
