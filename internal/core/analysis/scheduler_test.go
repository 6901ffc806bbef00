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

package analysis_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-ad-analysis/internal/core/analysis"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerBound(t *testing.T) {
	assert.Equal(t, 3, analysis.NewScheduler(4).Bound(3))
	assert.Equal(t, 4, analysis.NewScheduler(4).Bound(10))
	assert.Equal(t, 10, analysis.NewScheduler(0).Bound(10))
}

func TestSchedulerRunsAllWithinLimit(t *testing.T) {
	var done, inFlight, peak atomic.Int64
	tasks := make([]analysis.Task, 12)
	for i := range tasks {
		tasks[i] = func(context.Context) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			done.Add(1)
		}
	}

	analysis.NewScheduler(3).Run(context.Background(), tasks)

	assert.EqualValues(t, 12, done.Load())
	assert.LessOrEqual(t, peak.Load(), int64(3))
}
