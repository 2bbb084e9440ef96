package grpccas

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/ans104/storage"
	"xdao.co/ans104/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC payload store client (talks to ans104-payloadd)",
		Usage:       casregistry.UsageCLI,
		Keys:        []string{"target", "dial_timeout", "timeout", "max_msg_bytes"},
		Open:        open,
	})
}

func open(cfg map[string]string) (storage.CAS, func() error, error) {
	target := strings.TrimSpace(cfg["target"])
	if target == "" {
		return nil, nil, fmt.Errorf("grpc: missing config key %q", "target")
	}
	opts := DialOptions{Timeout: 5 * time.Second}
	var err error
	if v := cfg["dial_timeout"]; v != "" {
		if opts.Timeout, err = time.ParseDuration(v); err != nil {
			return nil, nil, fmt.Errorf("grpc: dial_timeout: %w", err)
		}
	}
	if v := cfg["max_msg_bytes"]; v != "" {
		if opts.MaxMsgBytes, err = strconv.Atoi(v); err != nil {
			return nil, nil, fmt.Errorf("grpc: max_msg_bytes: %w", err)
		}
	}
	var timeout time.Duration
	if v := cfg["timeout"]; v != "" {
		if timeout, err = time.ParseDuration(v); err != nil {
			return nil, nil, fmt.Errorf("grpc: timeout: %w", err)
		}
	}
	client, err := Dial(target, opts)
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = timeout
	return client, client.Close, nil
}
