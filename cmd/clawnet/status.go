package clawnet

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/igorsilveira/clawnet/pkg/config"
	"github.com/igorsilveira/clawnet/pkg/protocol"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health and protocol stats of a running node",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	base := "http://" + localAddr(cfg.Server)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(base + "/readyz")
	if err != nil {
		fmt.Fprintln(out, "status: node is not running")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		fmt.Fprintln(out, "status: node is ready")
	} else {
		fmt.Fprintf(out, "status: node returned %s\n", resp.Status)
	}

	var stats protocol.Stats
	if err := getJSON(client, base+"/api/v1/stats", cfg.Server.AuthToken, &stats); err != nil {
		fmt.Fprintf(out, "stats: %v\n", err)
		return nil
	}
	printStats(out, stats)
	return nil
}

// localAddr points at the node from the same host even when it binds to
// every interface.
func localAddr(s config.ServerConfig) string {
	if s.Bind == "lan" || s.Bind == "all" {
		s.Bind = "loopback"
	}
	return s.ListenAddr()
}

func getJSON(client *http.Client, url, token string, v any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s", resp.Status, body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func printStats(w io.Writer, s protocol.Stats) {
	if s.CurrentAgent != nil {
		fmt.Fprintf(w, "agent:    %s (%s) reputation %d\n", s.CurrentAgent.Name, s.CurrentAgent.ID, s.CurrentAgent.Reputation)
	} else {
		fmt.Fprintln(w, "agent:    not registered")
	}
	fmt.Fprintf(w, "agents:   %d\n", s.TotalAgents)
	fmt.Fprintf(w, "channels: %d\n", s.TotalChannels)
	fmt.Fprintf(w, "messages: %d\n", s.TotalMessages)
	fmt.Fprintf(w, "escrows:  %d active\n", s.ActiveEscrows)
	if s.LastSync.IsZero() {
		fmt.Fprintln(w, "synced:   never")
	} else {
		fmt.Fprintf(w, "synced:   %s\n", s.LastSync.Format(time.RFC3339))
	}
}
