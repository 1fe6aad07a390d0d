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
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nogueirapeterson/devito/jit"
)

func newTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "target",
		Short: "Print the host CPU features and the compile target they select",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printTarget(cmd.OutOrStdout())
		},
	}
}

func printTarget(w io.Writer) {
	fmt.Fprintf(w, "GOOS: %s\n", runtime.GOOS)
	fmt.Fprintf(w, "GOARCH: %s\n", runtime.GOARCH)
	fmt.Fprintf(w, "NumCPU: %d\n", runtime.NumCPU())
	fmt.Fprintln(w)

	t := jit.HostTarget()
	fmt.Fprintf(w, "Target: %s\n", t.Name)
	fmt.Fprintf(w, "Vector width: %d bytes\n", t.VecWidth)
	fmt.Fprintf(w, "Flags: %s\n", strings.Join(t.Flags, " "))
	fmt.Fprintln(w)

	features := jit.HostFeatures()
	if len(features) == 0 {
		return
	}
	fmt.Fprintln(w, "=== golang.org/x/sys/cpu ===")
	for _, f := range features {
		if f.Note != "" {
			fmt.Fprintf(w, "  Has%-9s %v (%s)\n", f.Name+":", f.Present, f.Note)
		} else {
			fmt.Fprintf(w, "  Has%-9s %v\n", f.Name+":", f.Present)
		}
	}
}
