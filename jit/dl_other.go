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

//go:build !(darwin || linux)

package jit

import (
	"fmt"
	"runtime"
)

// DLLoader is unavailable on this platform.
type DLLoader struct{}

var _ Loader = (*DLLoader)(nil)

// Load implements Loader.
func (*DLLoader) Load(a Artifact, symbol string, _ []ArgType) (Kernel, error) {
	return nil, fmt.Errorf("%w: dynamic loading is not supported on %s", ErrLoad, runtime.GOOS)
}
