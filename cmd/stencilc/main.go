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

// Command stencilc builds, inspects and runs stencil kernels.
//
// Usage:
//
//	stencilc target
//	stencilc emit [--problem diffusion]
//	stencilc run [--nx 64 --ny 64 --steps 10 --autotune]
//
// Settings come from STENCIL_* environment variables or the file given by
// --config (see internal/config).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nogueirapeterson/devito/internal/config"
)

type app struct {
	v       *viper.Viper
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	root := &cobra.Command{
		Use:          "stencilc",
		Short:        "Compile and run stencil kernels",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))
			slog.SetDefault(a.logger)
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "configuration file (YAML, TOML or JSON)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("cc", "gcc", "C compiler")
	flags.Bool("openmp", false, "compile with OpenMP")
	flags.String("march", "native", `instruction set: "native", "host" or a -march value`)
	if err := bindFlags(a.v, flags, map[string]string{"log_level": "log-level", "cc": "cc", "openmp": "openmp", "march": "march"}); err != nil {
		panic(err)
	}

	root.AddCommand(newTargetCmd(), newEmitCmd(a), newRunCmd(a))
	return root
}

// bindFlags makes each named flag override the configuration key it maps
// from when set on the command line.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("stencilc: no flag --%s", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func fail(format string, args ...any) error {
	return fmt.Errorf("stencilc: "+format, args...)
}
