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
	"runtime"

	"golang.org/x/sys/cpu"
)

// Target describes the instruction set a kernel is compiled for.
type Target struct {
	Name string
	Arch string
	// VecWidth is the SIMD register width in bytes.
	VecWidth int
	// Flags are the compiler flags selecting the instruction set.
	Flags []string
}

// AVX512Target returns the target for AVX-512 (512-bit SIMD).
func AVX512Target() Target {
	return Target{
		Name:     "AVX512",
		Arch:     "amd64",
		VecWidth: 64,
		Flags:    []string{"-mavx512f", "-mavx512bw", "-mavx512vl", "-mavx2", "-mfma"},
	}
}

// AVX2Target returns the target for AVX2 with FMA (256-bit SIMD).
func AVX2Target() Target {
	return Target{
		Name:     "AVX2",
		Arch:     "amd64",
		VecWidth: 32,
		Flags:    []string{"-mavx2", "-mfma"},
	}
}

// SSE2Target returns the amd64 baseline.
func SSE2Target() Target {
	return Target{Name: "SSE2", Arch: "amd64", VecWidth: 16, Flags: []string{"-msse2"}}
}

// SVETarget returns the target for the ARM Scalable Vector Extension.
func SVETarget() Target {
	return Target{Name: "SVE", Arch: "arm64", VecWidth: 16, Flags: []string{"-march=armv8.2-a+sve"}}
}

// NEONTarget returns the arm64 baseline.
func NEONTarget() Target {
	return Target{Name: "NEON", Arch: "arm64", VecWidth: 16, Flags: []string{"-march=armv8-a+simd+fp"}}
}

// GenericTarget leaves instruction selection to the compiler defaults.
func GenericTarget() Target {
	return Target{Name: "Generic", Arch: runtime.GOARCH, VecWidth: 8}
}

// HostTarget returns the best target the running CPU supports.
func HostTarget() Target {
	switch runtime.GOARCH {
	case "amd64":
		switch {
		case cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW && cpu.X86.HasAVX512VL:
			return AVX512Target()
		case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
			return AVX2Target()
		default:
			return SSE2Target()
		}
	case "arm64":
		if cpu.ARM64.HasSVE {
			return SVETarget()
		}
		return NEONTarget()
	}
	return GenericTarget()
}

// Feature is one CPU capability as seen by golang.org/x/sys/cpu.
type Feature struct {
	Name    string
	Present bool
	Note    string
}

// HostFeatures lists the capabilities relevant to kernel code generation.
func HostFeatures() []Feature {
	switch runtime.GOARCH {
	case "amd64":
		return []Feature{
			{"AVX", cpu.X86.HasAVX, ""},
			{"AVX2", cpu.X86.HasAVX2, ""},
			{"AVX512F", cpu.X86.HasAVX512F, ""},
			{"AVX512BW", cpu.X86.HasAVX512BW, ""},
			{"AVX512VL", cpu.X86.HasAVX512VL, ""},
			{"FMA", cpu.X86.HasFMA, ""},
			{"SSE2", cpu.X86.HasSSE2, ""},
			{"SSE41", cpu.X86.HasSSE41, ""},
			{"SSE42", cpu.X86.HasSSE42, ""},
		}
	case "arm64":
		return []Feature{
			{"ASIMD", cpu.ARM64.HasASIMD, "NEON baseline"},
			{"FP", cpu.ARM64.HasFP, "Floating point"},
			{"ASIMDHP", cpu.ARM64.HasASIMDHP, "FP16 NEON, ARMv8.2-A"},
			{"ASIMDFHM", cpu.ARM64.HasASIMDFHM, "FP16 FMA, ARMv8.4-A"},
			{"SVE", cpu.ARM64.HasSVE, "Scalable Vector Extension"},
			{"SVE2", cpu.ARM64.HasSVE2, "SVE2"},
		}
	}
	return nil
}
