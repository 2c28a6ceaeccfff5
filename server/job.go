package server

import "sync"

// RunningJob is a background task that can be asked to stop and then awaited.
type RunningJob struct {
	stop     chan struct{}
	closed   chan struct{}
	stopOnce *sync.Once
}

func (job *RunningJob) RequestStop() {
	job.stopOnce.Do(func() { close(job.stop) })
}

func (job *RunningJob) AwaitStop() {
	<-job.closed
}

func (job *RunningJob) Stop() {
	job.RequestStop()
	job.AwaitStop()
}

func SpawnJob(start func(), shutdown func()) RunningJob {
	stop := make(chan struct{})
	closed := make(chan struct{})
	go func() {
		<-stop
		shutdown()
		close(closed)
	}()
	go start()
	return RunningJob{stop: stop, closed: closed, stopOnce: &sync.Once{}}
}

func CombineJobs(jobs ...RunningJob) RunningJob {
	start := func() {}
	shutdown := func() {
		for i := range jobs {
			jobs[i].RequestStop()
		}
		for i := range jobs {
			jobs[i].AwaitStop()
		}
	}
	return SpawnJob(start, shutdown)
}
