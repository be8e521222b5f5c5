package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/GoPolymarket/extgate/internal/config"
	"github.com/GoPolymarket/extgate/internal/repository"
	"github.com/GoPolymarket/extgate/internal/service"
	"github.com/spf13/cobra"
)

var policiesCmd = &cobra.Command{
	Use:   "policies [service...]",
	Short: "Print the effective cache, log and prune decision of every endpoint",
	RunE:  runPolicies,
}

func runPolicies(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, v, err := config.LoadFrom(path)
	if err != nil {
		return err
	}

	keys := cfg.Services
	if len(args) > 0 {
		keys = args
	}

	// A store is required for the cache flag to resolve as configured.
	store := repository.NewMemoryCacheStore(time.Minute)
	defer store.Close()

	registry, err := service.BuildRegistry(v, keys,
		service.WithCacheStore(store),
		service.WithDefaults(cfg.Policy),
	)
	if err != nil {
		return err
	}
	return printPolicies(cmd.OutOrStdout(), registry)
}

func printPolicies(out io.Writer, registry *service.Registry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tENDPOINT\tMETHOD\tCACHE\tKEY\tTTL\tLOG REQ\tLOG RESP\tCHANNEL\tPRUNE REQ\tPRUNE RESP")

	for _, key := range registry.Keys() {
		client, _ := registry.Get(key)
		desc := client.Descriptor()
		names := desc.EndpointNames()
		sort.Strings(names)

		for _, name := range names {
			cp, lp, _ := client.Policies(name)
			ttl := "-"
			if cp.TTL() != nil {
				ttl = cp.TTL().String()
			}
			pruneReq, pruneResp := "off", "off"
			if desc.Pruning.PruneRequests() {
				pruneReq = fmt.Sprintf("%dd", desc.Pruning.RequestDays)
			}
			if desc.Pruning.PruneResponses() {
				pruneResp = fmt.Sprintf("%dd", desc.Pruning.ResponseDays)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				key,
				name,
				desc.Endpoints[name].Method,
				onOff(cp.Enabled()),
				orDash(cp.Key()),
				ttl,
				onOff(lp.ShouldLogRequests()),
				onOff(lp.ShouldLogResponses()),
				orDash(lp.Channel()),
				pruneReq,
				pruneResp,
			)
		}
	}
	return w.Flush()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
