package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/internal/gateway"
)

const rpcClientTimeout = 10 * time.Second

// buildStatusCmd creates the "status" command, which queries a running
// host's health over the gateway.
func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running host",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := callGateway("system.health", nil)
			if err != nil {
				return err
			}
			var health struct {
				Status  string         `json:"status"`
				Details map[string]any `json:"details"`
			}
			if err := json.Unmarshal(result, &health); err != nil {
				return fmt.Errorf("parse health response: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "status:", health.Status)
			for _, key := range []string{"plugins", "pluginsFailed", "tools", "commands", "providers", "methods"} {
				if v, ok := health.Details[key]; ok {
					fmt.Fprintf(out, "  %-14s %v\n", key, v)
				}
			}
			return nil
		},
	}
}

// buildCallCmd creates the "call" command: a generic RPC client for the
// local gateway.
func buildCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Call a gateway RPC method",
		Example: `  slashbot call tools.list
  slashbot call tools.run '{"toolId":"echo","args":{"text":"hi"}}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("params must be valid JSON")
				}
				params = json.RawMessage(args[1])
			}
			result, err := callGateway(args[0], params)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, result, "", "  "); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(result))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
}

// callGateway posts one RPC request to the configured gateway address.
func callGateway(method string, params json.RawMessage) (json.RawMessage, error) {
	cfg, err := config.Load(config.LoadOptions{})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Gateway.AuthToken == "" {
		return nil, fmt.Errorf("gateway.authToken is not configured; the gateway is disabled")
	}

	body, err := json.Marshal(map[string]any{"method": method, "params": params})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://%s:%d/rpc", cfg.Gateway.Host, cfg.Gateway.Port)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.Gateway.AuthToken)

	client := &http.Client{Timeout: rpcClientTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach gateway at %s: %w", url, err)
	}
	defer resp.Body.Close()

	var out struct {
		OK     bool            `json:"ok"`
		Result json.RawMessage `json:"result"`
		Error  *gateway.Error  `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse gateway response: %w", err)
	}
	if !out.OK {
		if out.Error != nil {
			return nil, fmt.Errorf("%s: %s", out.Error.Code, out.Error.Message)
		}
		return nil, fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}
	return out.Result, nil
}
