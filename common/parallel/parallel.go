// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parallel

import (
	"context"
	"sync"

	"github.com/gorse-io/gorse-tensor/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const chanSize = 1024

// DefaultChunkSize is the number of consecutive jobs handed to a worker at once.
const DefaultChunkSize = 4

/* Parallel Schedulers */

// Parallel schedules and runs tasks in parallel. nJobs is the number of tasks. nWorkers is
// the number of executors. worker is the executed function which passed a worker id and a
// job id. The ctx argument allows callers to cancel outstanding work.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := worker(0, i); err != nil {
				return errors.Trace(err)
			}
		}
	} else {
		c := make(chan int, chanSize)
		// producer
		go func() {
			defer close(c)
			for i := 0; i < nJobs; i++ {
				select {
				case <-ctx.Done():
					return
				case c <- i:
				}
			}
		}()
		// consumer
		var wg sync.WaitGroup
		errs := make([]error, nJobs)
		for j := 0; j < nWorkers; j++ {
			// start workers
			workerId := j
			wg.Go(func() {
				for {
					select {
					case <-ctx.Done():
						return
					case jobId, ok := <-c:
						if !ok {
							return
						}
						if err := ctx.Err(); err != nil {
							errs[jobId] = err
							return
						}
						// run job
						if err := worker(workerId, jobId); err != nil {
							errs[jobId] = err
							return
						}
					}
				}
			})
		}
		wg.Wait()
		// check errors
		for _, err := range errs {
			if err != nil {
				return errors.Trace(err)
			}
		}
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Dynamic runs jobs [0, nJobs) on nWorkers workers. Jobs are handed out in chunks of
// chunkSize consecutive ids to whichever worker is idle, so uneven job costs are balanced.
// worker receives the half-open range [begin, end) of a chunk. Dynamic returns after every
// worker has finished, which makes consecutive calls a barrier. Nothing cancels a running
// dispatch: jobs always run to completion.
func Dynamic(nJobs, nWorkers, chunkSize int, worker func(workerId, begin, end int) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if nWorkers <= 1 {
		for begin := 0; begin < nJobs; begin += chunkSize {
			if err := worker(0, begin, min(begin+chunkSize, nJobs)); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	c := make(chan int, chanSize)
	// producer
	go func() {
		defer close(c)
		for begin := 0; begin < nJobs; begin += chunkSize {
			c <- begin
		}
	}()
	// consumer
	var wg sync.WaitGroup
	errs := make([]error, nWorkers)
	for j := 0; j < nWorkers; j++ {
		workerId := j
		wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					log.Logger().Error("panic recovered", zap.Int("worker_id", workerId), zap.Any("panic", r))
					errs[workerId] = errors.Errorf("worker %d panicked: %v", workerId, r)
				}
				// drain remaining chunks so the producer can exit
				for range c {
				}
			}()
			for begin := range c {
				if errs[workerId] != nil {
					continue
				}
				if err := worker(workerId, begin, min(begin+chunkSize, nJobs)); err != nil {
					errs[workerId] = err
				}
			}
		})
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
