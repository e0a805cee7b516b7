package provider

import (
	"context"
	"sync"
)

// Outcome is the settled result of one case's dispatch. Outcomes are always
// correlated by CaseID; callers must never rely on slice position matching
// submission order of anything but the input requests.
type Outcome struct {
	CaseID   string
	Response *Response
	Err      error
}

// InvokeAll dispatches every request through a bounded worker pool and
// settles all of them: one worker's failure never blocks or cancels
// siblings. maxConcurrency 0 falls back to the backend's declared worker
// count, then to 1.
func (g *Gateway) InvokeAll(ctx context.Context, reqs []*Request, maxConcurrency int) []Outcome {
	workers := maxConcurrency
	if workers <= 0 {
		workers = g.backend.Workers()
	}
	if workers <= 0 {
		workers = 1
	}

	outcomes := make([]Outcome, len(reqs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, req *Request) {
			defer wg.Done()
			defer func() { <-sem }()

			resp, err := g.Invoke(ctx, req)
			outcomes[i] = Outcome{CaseID: req.CaseID, Response: resp, Err: err}
		}(i, req)
	}

	wg.Wait()
	return outcomes
}
