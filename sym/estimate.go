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

package sym

// EstimateCost counts the arithmetic operations performed by one evaluation
// of every expression in exprs. Intrinsic calls count as one operation.
func EstimateCost(exprs []Expr) int {
	ops := 0
	for _, e := range exprs {
		Walk(e, func(n Expr) bool {
			switch n.(type) {
			case *Binary, *Call:
				ops++
			}
			return true
		})
	}
	return ops
}

// EstimateMemory counts the distinct grid elements touched by one evaluation
// of exprs, which bounds the compulsory memory traffic per iteration.
func EstimateMemory(exprs []Expr) int {
	seen := map[string]bool{}
	for _, e := range exprs {
		for _, i := range Indexeds(e) {
			seen[i.String()] = true
		}
	}
	return len(seen)
}
