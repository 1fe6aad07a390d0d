// Copyright 2025 The devito-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Toolchain compiles with a GCC-compatible driver and caches the shared
// objects by content. Concurrent requests for the same source share one
// compiler run.
type Toolchain struct {
	// CC is the compiler driver; empty means "gcc".
	CC string
	// March selects the instruction set: "native", "host" (flags of
	// HostTarget), "" (compiler default) or an explicit -march value.
	March string
	// OpenMP links the OpenMP runtime.
	OpenMP bool
	// CacheDir holds the artifacts; empty means a directory under
	// os.TempDir.
	CacheDir string
	// Check parses the source with a C front end before compiling.
	Check bool
	// Flags are appended to the command line.
	Flags []string
	// Logger receives compiler invocations at debug level.
	Logger *slog.Logger

	group singleflight.Group
}

var _ Compiler = (*Toolchain)(nil)

func (tc *Toolchain) cc() string {
	if tc.CC == "" {
		return "gcc"
	}
	return tc.CC
}

func (tc *Toolchain) logger() *slog.Logger {
	if tc.Logger == nil {
		return slog.Default()
	}
	return tc.Logger
}

// Dir returns the artifact cache directory.
func (tc *Toolchain) Dir() string {
	if tc.CacheDir == "" {
		return filepath.Join(os.TempDir(), "stencil-jit")
	}
	return tc.CacheDir
}

// Args returns the compiler arguments turning src into out.
func (tc *Toolchain) Args(src, out string) []string {
	args := []string{"-O3", "-g", "-fPIC", "-shared", "-std=c99", "-Wall", "-Wno-unused-result", "-Wno-unknown-pragmas"}
	switch tc.March {
	case "":
	case "host":
		args = append(args, HostTarget().Flags...)
	default:
		args = append(args, "-march="+tc.March)
	}
	if tc.OpenMP {
		args = append(args, "-fopenmp")
	}
	args = append(args, tc.Flags...)
	return append(args, "-o", out, src, "-lm")
}

// Hash identifies src compiled with the current settings.
func (tc *Toolchain) Hash(src string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", tc.cc(), strings.Join(tc.Args("", ""), " "))
	h.Write([]byte(src))
	return hex.EncodeToString(h.Sum(nil))[:20]
}

// Compile implements Compiler. An artifact already present in the cache
// directory is returned without running the compiler.
func (tc *Toolchain) Compile(ctx context.Context, src string) (Artifact, error) {
	hash := tc.Hash(src)
	v, err, _ := tc.group.Do(hash, func() (any, error) {
		return tc.compile(ctx, src, hash)
	})
	if err != nil {
		return Artifact{}, err
	}
	return v.(Artifact), nil
}

func (tc *Toolchain) compile(ctx context.Context, src, hash string) (Artifact, error) {
	dir := tc.Dir()
	path := filepath.Join(dir, "kernel-"+hash+".so")
	if _, err := os.Stat(path); err == nil {
		tc.logger().Debug("jit cache hit", "artifact", path)
		return Artifact{Path: path, Hash: hash, Cached: true}, nil
	}
	if tc.Check {
		if err := Check(src); err != nil {
			return Artifact{}, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("jit: create cache dir: %w", err)
	}

	work, err := os.MkdirTemp(dir, "build-*")
	if err != nil {
		return Artifact{}, fmt.Errorf("jit: create build dir: %w", err)
	}
	defer os.RemoveAll(work)
	cFile := filepath.Join(work, "kernel-"+hash+".c")
	if err := os.WriteFile(cFile, []byte(src), 0o644); err != nil {
		return Artifact{}, fmt.Errorf("jit: write source: %w", err)
	}
	tmp := filepath.Join(work, filepath.Base(path))
	args := tc.Args(cFile, tmp)
	tc.logger().Debug("jit compile", "cc", tc.cc(), "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, tc.cc(), args...)
	cmd.Env = os.Environ()
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v: %s", ErrCompile, err, string(output))
	}
	// Keep the source next to the artifact for inspection.
	if err := os.WriteFile(strings.TrimSuffix(path, ".so")+".c", []byte(src), 0o644); err != nil {
		return Artifact{}, fmt.Errorf("jit: write source: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return Artifact{}, fmt.Errorf("jit: install artifact: %w", err)
	}
	tc.logger().Debug("jit compiled", "artifact", path)
	return Artifact{Path: path, Hash: hash}, nil
}
