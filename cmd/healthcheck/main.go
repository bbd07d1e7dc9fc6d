// Command healthcheck probes the timeoffd health endpoint and reports the
// result through its exit code, for use as a container health check.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"
)

const probeTimeout = 2 * time.Second

func main() {
	os.Exit(probe())
}

func probe() int {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	target := "http://" + probeAddr(os.Getenv("TIMEOFFD_LISTEN_ADDR")) + "/api/v1/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 1
	}

	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return 1
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

// probeAddr turns the server's bind address into one the probe can dial from
// inside the same container: a 0.0.0.0 or empty host becomes loopback.
func probeAddr(raw string) string {
	if raw == "" {
		return "127.0.0.1:8080"
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return "127.0.0.1:8080"
	}

	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
