package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/0xhtml/crawler/internal/crawlcfg"
)

type statusPayload struct {
	DocumentsIndexed int `json:"documents_indexed"`
	FrontierSize     int `json:"frontier_size"`
	InflightHosts    int `json:"inflight_hosts"`
	UptimeSeconds    int `json:"uptime_seconds"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the running crawler's counters as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := crawlcfg.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return printStatus(cfg.StatusAddr)
		},
	}
}

func printStatus(addr string) error {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/status", addr))
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Documents Indexed", "Frontier Size", "Inflight Hosts", "Uptime"})
	t.AppendRow(table.Row{
		payload.DocumentsIndexed,
		payload.FrontierSize,
		payload.InflightHosts,
		time.Duration(payload.UptimeSeconds) * time.Second,
	})
	t.Render()
	return nil
}
