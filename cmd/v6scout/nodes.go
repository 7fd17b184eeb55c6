package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/v6scout/pkg/proxy"
)

func newNodesCmd(a *app) *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List the rotation candidates of the proxy group and the active node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pc := a.cfg.Proxy
			if pc.ControllerURL == "" {
				return errors.New("proxy.controller_url is not configured")
			}
			ctrl, err := proxy.NewController(proxy.ControllerConfig{
				URL:     pc.ControllerURL,
				Secret:  pc.Secret,
				Exclude: pc.Exclude,
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			nodes, err := ctrl.ListNodes(ctx, pc.Group)
			if err != nil {
				return err
			}
			active, err := ctrl.Active(ctx, pc.Group)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "\tNODE\n")
			for _, n := range nodes {
				mark := ""
				if n == active {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\n", mark, n)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d candidates in %q, active: %s\n", len(nodes), pc.Group, active)

			if !probe {
				return nil
			}
			addr := net.JoinHostPort(pc.Host, strconv.Itoa(pc.Port))
			if !proxy.Reachable(ctx, addr, time.Second) {
				fmt.Fprintf(out, "proxy %s: unreachable\n", addr)
				return nil
			}
			fmt.Fprintf(out, "proxy %s: reachable\n", addr)
			if pc.EgressCheckURL == "" {
				return nil
			}
			egress, err := newEgressChecker(pc)
			if err != nil {
				return err
			}
			ip, err := egress.IP(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "egress address: %s\n", ip)
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "also test the local proxy and report the egress address")
	return cmd
}
