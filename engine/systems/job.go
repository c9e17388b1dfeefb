package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/assetloader/engine/core"
)

/** Definition for the body of a job. The returned value is handed to OnComplete. */
type JobRun func() (interface{}, error)

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	/** @brief Identifier used in log lines. Optional. */
	ID string
	/** @brief The work itself. Required. */
	Run JobRun
	/** @brief Invoked with the result when Run succeeds. Optional. */
	OnComplete func(result interface{})
	/** @brief Invoked with the error when Run fails. Optional. */
	OnFailure func(err error)
	/** @brief Invoked after OnComplete/OnFailure regardless of the outcome. Optional. */
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	// guards jobQueue against sends after close
	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")
var ErrMissingRun = errors.New("job has no run function")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	jq := make(chan JobTask, channelSize)
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   jq,
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.execute(job)
			}
		}()
	}
}

func (js *JobSystem) execute(job JobTask) {
	result, err := job.Run()
	if err != nil {
		core.LogDebug("job %s failed: %s", job.ID, err.Error())
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete(result)
	}

	// Call the completion callback if set
	if job.OnCompletionCallback != nil {
		job.OnCompletionCallback()
	}
}

/**
 * @brief Shuts the job system down. Jobs already queued still run.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

// Workers returns the size of the pool.
func (js *JobSystem) Workers() int {
	return js.numWorkers
}

// AddWorkNonBlocking queues the job from a separate goroutine and returns immediately.
// If the system is shut down before the job is queued, OnFailure receives ErrJobSystemClosed.
func (js *JobSystem) AddWorkNonBlocking(jt JobTask) {
	go func() {
		if err := js.Submit(jt); err != nil && jt.OnFailure != nil {
			jt.OnFailure(err)
		}
	}()
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while the queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.Run == nil {
		return ErrMissingRun
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}
