package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	tftp "github.com/jonasjelonek/tftp"
)

func newServerCmd() *cobra.Command {
	var (
		bind string
		port uint16
		root string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve files over TFTP from a root directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, err := tftp.NewRootHandler(root)
			if err != nil {
				return err
			}

			srv := tftp.NewServer(handler)
			srv.Logger = newLogger()
			srv.Port = port
			if bind != "" {
				ip := net.ParseIP(bind)
				if ip == nil {
					return fmt.Errorf("invalid --bind address %q", bind)
				}
				srv.BindIP = ip
			}

			srv.Logger.Infof("tftp: serving %s", handler.Dir())
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&bind, "bind", "b", "", "local address to bind to (default: any)")
	cmd.Flags().Uint16VarP(&port, "port", "p", tftp.DefaultPort, "port to listen on")
	cmd.Flags().StringVarP(&root, "root", "r", ".", "root directory to serve files from")
	return cmd
}
