package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/uoaprobe/internal/echo"
	"firestige.xyz/uoaprobe/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the UDP echo service",
	Long: `Run the UDP echo service on IPv4 and IPv6. Each datagram is answered with
"Msg=<payload>" followed by ", RealAddr=<ip>:<port>" when the kernel UOA module
reports a real address for the sender.

Examples:
  uoaprobe serve
  uoaprobe serve --port 6000 --listen-ipv6 ""`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var serveFlags = map[string]string{
	"port":        "echo.port",
	"listen-ipv4": "echo.listen_ipv4",
	"listen-ipv6": "echo.listen_ipv6",
}

func init() {
	def := echo.DefaultConfig()
	serveCmd.Flags().Uint16P("port", "p", def.Port, "UDP port to listen on")
	serveCmd.Flags().String("listen-ipv4", def.ListenIPv4, "IPv4 listen address (empty disables IPv4)")
	serveCmd.Flags().String("listen-ipv6", def.ListenIPv6, "IPv6 listen address (empty disables IPv6)")
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd.Flags(), serveFlags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopMetrics, err := startMetrics(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopMetrics()

	log.GetLogger().WithFields(map[string]interface{}{
		"port": cfg.Echo.Port,
		"ipv4": cfg.Echo.ListenIPv4,
		"ipv6": cfg.Echo.ListenIPv6,
	}).Info("starting echo service")

	return echo.NewServer(cfg.Echo, nil).ListenAndServe(ctx)
}
