package cli

import (
	"github.com/chrissnell/fragsize/internal/app"
	"github.com/spf13/cobra"
)

func newServeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and the gRPC service",
		Long: `
Serve the REST API (under /api/v1) and the fragsize.v1.Calibration gRPC service
on one port. Sessions are kept in memory and saved to the session database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr := o.v.GetString(o.key("serve", "listen")); addr != "" {
				o.cfg.Server.ListenAddr = addr
			}
			if port := o.v.GetInt(o.key("serve", "port")); port != 0 {
				o.cfg.Server.Port = port
			}
			if err := o.cfg.Validate(); err != nil {
				return err
			}
			return app.New(o.cfg, o.logger).Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.String("listen", "", "Listen address (default from config)")
	f.IntP("port", "p", 0, "Listen port (default from config)")
	o.bindFlags("serve", f, "listen", "port")
	return cmd
}
