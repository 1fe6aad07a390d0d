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

//go:build darwin || linux

package jit

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

// DLLoader opens artifacts with dlopen and keeps each handle for the life
// of the process.
type DLLoader struct {
	mu      sync.Mutex
	handles map[string]uintptr
}

var _ Loader = (*DLLoader)(nil)

func (l *DLLoader) open(path string) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.handles[path]; ok {
		return h, nil
	}
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}
	if l.handles == nil {
		l.handles = make(map[string]uintptr)
	}
	l.handles[path] = h
	return h, nil
}

// Load implements Loader.
func (l *DLLoader) Load(a Artifact, symbol string, sig []ArgType) (Kernel, error) {
	if len(sig) > maxArgs {
		return nil, fmt.Errorf("%w: %s takes %d arguments, at most %d are supported", ErrLoad, symbol, len(sig), maxArgs)
	}
	h, err := l.open(a.Path)
	if err != nil {
		return nil, err
	}
	fn, err := purego.Dlsym(h, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, symbol, err)
	}
	return &nativeKernel{fn: fn, sig: sig}, nil
}

type nativeKernel struct {
	fn  uintptr
	sig []ArgType
}

func (k *nativeKernel) Call(args []Arg) (int, error) {
	if err := CheckArgs(k.sig, args); err != nil {
		return 0, err
	}
	raw := make([]uintptr, len(args))
	for i, a := range args {
		if a.Type.Kind == ArgInt {
			raw[i] = uintptr(a.Int)
		} else {
			raw[i] = uintptr(a.Ptr)
		}
	}
	r1, _, _ := purego.SyscallN(k.fn, raw...)
	for _, a := range args {
		runtime.KeepAlive(a.Ptr)
	}
	return int(int32(r1)), nil
}
