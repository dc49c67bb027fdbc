// Package fsdomain registers the built-in "fs" domain: file commands the
// editor UI issues against the worker's filesystem access.
package fsdomain

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/codespacesh/domainwire/internal/domain"
)

// StatInfo is the result of fs.stat.
type StatInfo struct {
	Size    int64  `json:"size"`
	Mode    string `json:"mode"`
	ModTime string `json:"mtime"`
	IsDir   bool   `json:"isDir"`
}

// Register installs the fs domain. File commands are asynchronous so a slow
// disk never stalls the connection's receive loop; fs.hash returns raw
// digest bytes and therefore rides the binary response path.
func Register(r *domain.Registry) {
	r.RegisterDomain("fs")

	r.RegisterCommand("fs", "readFile", domain.Handler{Async: readFile})
	r.RegisterCommand("fs", "writeFile", domain.Handler{Async: writeFile})
	r.RegisterCommand("fs", "stat", domain.Handler{Async: stat})
	r.RegisterCommand("fs", "hash", domain.Handler{Async: hash})
}

func readFile(_ context.Context, args []any) (any, error) {
	path, err := domain.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func writeFile(_ context.Context, args []any) (any, error) {
	path, err := domain.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	text, err := domain.StringArg(args, 1)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(text), nil
}

func stat(_ context.Context, args []any) (any, error) {
	path, err := domain.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return StatInfo{
		Size:    fi.Size(),
		Mode:    fi.Mode().String(),
		ModTime: fi.ModTime().UTC().Format(time.RFC3339),
		IsDir:   fi.IsDir(),
	}, nil
}

// hash returns the SHA-256 digest of a file as raw bytes.
func hash(_ context.Context, args []any) (any, error) {
	path, err := domain.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
