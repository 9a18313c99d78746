// internal/pkg/async/pool.go
package async

import (
	"context"
	"fmt"
	"sync"
)

type Task struct {
	Name    string
	Execute func() (interface{}, error)
}

type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Group runs a fixed batch of named tasks on a bounded number of goroutines
// and collects their results.
type Group struct {
	workerCount int
}

func NewGroup(workerCount int) *Group {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Group{workerCount: workerCount}
}

// Run executes tasks and returns results keyed by task name. Tasks that did not
// finish before ctx was cancelled are reported with ctx.Err().
func (g *Group) Run(ctx context.Context, tasks []Task) map[string]Result {
	taskCh := make(chan Task)
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < g.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				resultCh <- runTask(task)
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[string]Result, len(tasks))
	for result := range resultCh {
		results[result.Name] = result
	}

	for _, task := range tasks {
		if _, ok := results[task.Name]; !ok {
			results[task.Name] = Result{Name: task.Name, Err: ctx.Err()}
		}
	}
	return results
}

func runTask(task Task) (result Result) {
	result.Name = task.Name
	defer func() {
		if r := recover(); r != nil {
			result.Data = nil
			result.Err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	result.Data, result.Err = task.Execute()
	return result
}
