package clawnet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/igorsilveira/clawnet/pkg/config"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose issues with the Clawnet installation",
	RunE:  runDoctor,
}

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Clawnet Doctor v%s\n", version)
	fmt.Fprintf(out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(out, "Go: %s\n\n", runtime.Version())

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "  ✗ Config file: %s\n", err)
		return err
	}

	checks := []checkResult{
		checkDataDir(),
		checkConfigFile(configPath()),
		checkDatabase(cfg),
		checkProtocol(cfg),
		checkGateway(cmd.Context(), cfg),
		checkNode(cfg),
	}
	return report(out, checks)
}

func report(out io.Writer, checks []checkResult) error {
	passed, failed := 0, 0
	for _, c := range checks {
		status := "✓"
		if !c.ok {
			status = "✗"
			failed++
		} else {
			passed++
		}
		fmt.Fprintf(out, "  %s %s: %s\n", status, c.name, c.detail)
	}

	fmt.Fprintf(out, "\n%d passed, %d failed\n", passed, failed)

	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

func checkDataDir() checkResult {
	dir := config.DataDir()
	info, err := os.Stat(dir)
	if err != nil {
		return checkResult{"Data directory", false, fmt.Sprintf("%s does not exist", dir)}
	}
	if !info.IsDir() {
		return checkResult{"Data directory", false, fmt.Sprintf("%s is not a directory", dir)}
	}
	return checkResult{"Data directory", true, dir}
}

func checkConfigFile(path string) checkResult {
	if _, err := os.Stat(path); err != nil {
		return checkResult{"Config file", false, fmt.Sprintf("%s not found (using defaults)", path)}
	}
	return checkResult{"Config file", true, path}
}

func checkDatabase(cfg *config.Config) checkResult {
	info, err := os.Stat(cfg.Store.DSN)
	if err != nil {
		return checkResult{"Database", false, fmt.Sprintf("%s not found (will be created on first start)", cfg.Store.DSN)}
	}
	return checkResult{"Database", true, fmt.Sprintf("%s (%d KB)", cfg.Store.DSN, info.Size()/1024)}
}

func checkProtocol(cfg *config.Config) checkResult {
	if err := cfg.Protocol.Validate(); err != nil {
		return checkResult{"Protocol settings", false, err.Error()}
	}
	return checkResult{"Protocol settings", true, fmt.Sprintf("agent %q on %s", cfg.Protocol.AgentName, cfg.Protocol.RPCURL)}
}

func checkGateway(ctx context.Context, cfg *config.Config) checkResult {
	if ctx == nil {
		ctx = context.Background()
	}
	gw, _, err := newGateway(cfg, nil)
	if err != nil {
		return checkResult{"Chain gateway", false, err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if !gw.HealthCheck(ctx) {
		return checkResult{"Chain gateway", false, fmt.Sprintf("%s is not answering", cfg.Protocol.RPCURL)}
	}
	if cfg.Gateway.Mode == "simulate" {
		return checkResult{"Chain gateway", true, "in-process simulator"}
	}
	return checkResult{"Chain gateway", true, cfg.Protocol.RPCURL}
}

func checkNode(cfg *config.Config) checkResult {
	url := "http://" + localAddr(cfg.Server) + "/healthz"

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return checkResult{"Node", false, "not running"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return checkResult{"Node", true, fmt.Sprintf("running at %s", localAddr(cfg.Server))}
	}
	return checkResult{"Node", false, fmt.Sprintf("unhealthy (status %d)", resp.StatusCode)}
}
