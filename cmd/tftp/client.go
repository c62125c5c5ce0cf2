package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	tftp "github.com/jonasjelonek/tftp"
	"github.com/jonasjelonek/tftp/internal/cliopt"
	"github.com/jonasjelonek/tftp/internal/rootfs"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Transfer a single file to or from a TFTP server",
	}
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	return cmd
}

func clientOptionFlags(cmd *cobra.Command, opts *cliopt.ClientOptions) {
	cmd.Flags().Uint16VarP(&opts.Blocksize, "blocksize", "b", 0, "requested block size (RFC 2348)")
	cmd.Flags().Uint8VarP(&opts.TimeoutSecs, "timeout", "t", 0, "requested per-block timeout in seconds (RFC 2349)")
	cmd.Flags().BoolVarP(&opts.TransferSize, "transfer-size", "T", false, "negotiate tsize (RFC 2349)")
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}

func newGetCmd() *cobra.Command {
	var clientOpts cliopt.ClientOptions

	cmd := &cobra.Command{
		Use:   "get <file> <server> [port]",
		Short: "Retrieve a file from a TFTP server",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, server := args[0], args[1]
			var port uint16
			if len(args) == 3 {
				p, err := parsePort(args[2])
				if err != nil {
					return err
				}
				port = p
			}

			cwd, err := rootfs.Open(".")
			if err != nil {
				return err
			}
			dst, err := cwd.Create(filepath.Base(file))
			if err != nil {
				return err
			}
			defer dst.Close()

			client := tftp.NewClient()
			client.Logger = newLogger()
			return client.Get(cmd.Context(), file, server, port, clientOpts.ToTFTPOptions(), dst)
		},
	}
	clientOptionFlags(cmd, &clientOpts)
	return cmd
}

func newPutCmd() *cobra.Command {
	var clientOpts cliopt.ClientOptions

	cmd := &cobra.Command{
		Use:   "put <file> <server> [port]",
		Short: "Send a file to a TFTP server",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, server := args[0], args[1]
			var port uint16
			if len(args) == 3 {
				p, err := parsePort(args[2])
				if err != nil {
					return err
				}
				port = p
			}

			cwd, err := rootfs.Open(".")
			if err != nil {
				return err
			}
			src, err := cwd.OpenFile(filepath.Base(file))
			if err != nil {
				return err
			}
			defer src.Close()

			client := tftp.NewClient()
			client.Logger = newLogger()
			return client.Put(cmd.Context(), filepath.Base(file), server, port, clientOpts.ToTFTPOptions(), src)
		},
	}
	clientOptionFlags(cmd, &clientOpts)
	return cmd
}
