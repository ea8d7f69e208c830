// Command modelctl is an operator CLI that talks to a running modelrund
// over its JSON-RPC and metrics surface: os.Args subcommands dispatching
// to one doRequest call each, env-var defaults, no flag package.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	gateway := os.Getenv("MODELRUN_GATEWAY_URL")
	if gateway == "" {
		gateway = "http://localhost:8080"
	}
	tenantID := os.Getenv("MODELRUN_TENANT_ID")
	if tenantID == "" {
		tenantID = "default"
	}

	switch os.Args[1] {
	case "call":
		cmdCall(gateway, tenantID)
	case "health":
		cmdHealth(gateway)
	case "metrics":
		cmdMetrics(gateway)
	case "version":
		fmt.Printf("modelctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`modelctl v` + version + `

Usage: modelctl <command> [flags]

Commands:
  call      Invoke one capability op via JSON-RPC
  health    Check the daemon's /healthz endpoint
  metrics   Dump the daemon's /metrics JSON (pool and stream stats)
  version   Print version
  help      Show this help

Environment:
  MODELRUN_GATEWAY_URL   Daemon base URL (default: http://localhost:8080)
  MODELRUN_TENANT_ID     Tenant ID sent as X-Tenant-ID (default: "default")

Examples:
  modelctl call --capability text_embedding --key bge-small --op embed --args '{"text":"hello"}'
  modelctl health
  modelctl metrics`)
}

func cmdCall(gateway, tenantID string) {
	var capability, registryKey, op, argsJSON string

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--capability", "-c":
			i++
			if i < len(args) {
				capability = args[i]
			}
		case "--key", "-k":
			i++
			if i < len(args) {
				registryKey = args[i]
			}
		case "--op", "-o":
			i++
			if i < len(args) {
				op = args[i]
			}
		case "--args", "-a":
			i++
			if i < len(args) {
				argsJSON = args[i]
			}
		}
	}

	if capability == "" || registryKey == "" || op == "" {
		fmt.Fprintln(os.Stderr, "Error: --capability, --key, and --op are required")
		os.Exit(1)
	}
	if argsJSON == "" {
		argsJSON = "{}"
	}

	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      fmt.Sprintf("modelctl-%d", time.Now().UnixNano()%1_000_000),
		"method":  "dispatch",
		"params": map[string]interface{}{
			"capability":   capability,
			"registry_key": registryKey,
			"op":           op,
			"args":         json.RawMessage(argsJSON),
		},
	})

	resp, err := doRequest("POST", gateway+"/v1/rpc", body, tenantID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(resp))
}

func cmdHealth(gateway string) {
	resp, err := doRequest("GET", gateway+"/healthz", nil, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(resp))
}

func cmdMetrics(gateway string) {
	resp, err := doRequest("GET", gateway+"/metrics", nil, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrics fetch failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(resp))
}

func doRequest(method, url string, body []byte, tenantID string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
