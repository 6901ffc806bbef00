// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work that reports its outcome through its own side
// effects; it cannot fail the pool.
type Task func(ctx context.Context)

// Scheduler runs tasks with a bounded number in flight. Each pipeline owns
// its own Scheduler so a slow pool never starves another.
type Scheduler struct {
	maxInFlight int
}

// NewScheduler creates a pool capped at maxInFlight tasks. A cap below one
// means one slot per task.
func NewScheduler(maxInFlight int) *Scheduler {
	return &Scheduler{maxInFlight: maxInFlight}
}

// Bound is the number of concurrent slots used for n tasks.
func (s *Scheduler) Bound(n int) int {
	if s.maxInFlight < 1 || s.maxInFlight > n {
		return n
	}
	return s.maxInFlight
}

// Run executes every task and returns once all have finished.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) {
	if len(tasks) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(s.Bound(len(tasks)))
	for _, task := range tasks {
		g.Go(func() error {
			task(ctx)
			return nil
		})
	}
	_ = g.Wait()
}
