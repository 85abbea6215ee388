package collector

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Listen accepts a TCP address, unix://path or, on Windows, npipe://path.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		return listenUnix(ctx, path)
	}

	if path, ok := strings.CutPrefix(addr, "npipe://"); ok {
		return listenNamedPipe(path)
	}

	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

func listenUnix(ctx context.Context, path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	return lc.Listen(ctx, "unix", path)
}
