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

package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEmit(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "diffusion",
			args: []string{"emit", "--nx", "16", "--ny", "16"},
			want: []string{"#include <sys/time.h>", "struct profiler", "int Kernel(float *restrict u_vec", "x0_block_size", "return 0;"},
		},
		{
			name: "double precision timestep without blocking",
			args: []string{"emit", "--problem", "timestep", "--double", "--dle", "basic"},
			want: []string{"int Kernel(double *restrict u_vec", "const int time_size", "#pragma GCC ivdep"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output lacks %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestEmitUnknownProblem(t *testing.T) {
	if _, err := execute(t, "emit", "--problem", "wave"); err == nil || !strings.Contains(err.Error(), "unknown problem") {
		t.Errorf("emit --problem wave error = %v", err)
	}
}

func TestTarget(t *testing.T) {
	out, err := execute(t, "target")
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range []string{"GOARCH:", "Target:", "Vector width:"} {
		if !strings.Contains(out, w) {
			t.Errorf("output lacks %q:\n%s", w, out)
		}
	}
}
