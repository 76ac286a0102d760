package goroutinepool

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Priority 任务优先级，空闲工作协程总是先取高优先级队列
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2

	priorityLevels = 3
)

func (p Priority) valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	}
	return "normal"
}

// Task 代表一个需要执行的任务
type Task struct {
	ID         string
	Function   func() error
	Callback   func(error)
	Priority   Priority // 零值为低优先级
	Timeout    time.Duration
	Retry      int           // 小于0表示不重试，0使用默认值
	RetryDelay time.Duration // 重试间隔，默认1秒
}

// Worker 工作协程
type Worker struct {
	ID         int
	TaskChan   chan *Task
	WorkerPool chan chan *Task
	Quit       chan bool
	ctx        context.Context
	pool       *Pool
}

// Pool goroutine池，每个优先级一条队列
type Pool struct {
	WorkerPool chan chan *Task
	queues     [priorityLevels]chan *Task
	Workers    []*Worker
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	// 统计信息
	totalTasks     int64
	completedTasks int64
	failedTasks    int64
	activeTasks    int64
	rejectedTasks  [priorityLevels]int64
}

var (
	globalPool *Pool
	poolOnce   sync.Once
)

// GetPool 获取全局goroutine池
func GetPool() *Pool {
	poolOnce.Do(func() {
		globalPool = NewPool(runtime.NumCPU()*2, 10000)
		globalPool.Start()
	})
	return globalPool
}

// NewPool 创建新的goroutine池，maxQueue 是每个优先级队列的容量
func NewPool(maxWorkers int, maxQueue int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		WorkerPool: make(chan chan *Task, maxWorkers),
		Workers:    make([]*Worker, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := range pool.queues {
		pool.queues[i] = make(chan *Task, maxQueue)
	}

	// 创建工作协程
	for i := 0; i < maxWorkers; i++ {
		worker := &Worker{
			ID:         i + 1,
			TaskChan:   make(chan *Task),
			WorkerPool: pool.WorkerPool,
			Quit:       make(chan bool),
			ctx:        ctx,
			pool:       pool,
		}
		pool.Workers[i] = worker
	}

	return pool
}

// Start 启动goroutine池
func (p *Pool) Start() {
	// 启动分发器
	p.wg.Add(1)
	go p.dispatcher()

	// 启动所有工作协程
	for _, worker := range p.Workers {
		p.wg.Add(1)
		go worker.start(&p.wg)
	}

	// 启动统计收集器
	p.wg.Add(1)
	go p.statsCollector()

	log.Printf("Goroutine池已启动，工作协程数: %d", len(p.Workers))
}

// Stop 停止goroutine池
func (p *Pool) Stop() {
	log.Printf("正在停止goroutine池...")

	// 取消上下文
	p.cancel()

	// 等待所有协程完成
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	// 等待最多30秒
	select {
	case <-done:
		log.Printf("Goroutine池已安全停止")
	case <-time.After(30 * time.Second):
		log.Printf("Goroutine池停止超时，强制退出")
	}
}

// Submit 提交任务到池，对应优先级的队列满时返回 ErrPoolOverloaded
func (p *Pool) Submit(task *Task) error {
	// 设置默认值
	if task.Timeout == 0 {
		task.Timeout = 30 * time.Second
	}
	if task.Retry == 0 {
		task.Retry = 3
	} else if task.Retry < 0 {
		task.Retry = 0
	}
	if task.RetryDelay == 0 {
		task.RetryDelay = time.Second
	}
	if !task.Priority.valid() {
		task.Priority = PriorityNormal
	}

	if p.ctx.Err() != nil {
		return p.ctx.Err()
	}

	atomic.AddInt64(&p.totalTasks, 1)

	select {
	case p.queues[task.Priority] <- task:
		return nil
	default:
		atomic.AddInt64(&p.failedTasks, 1)
		atomic.AddInt64(&p.rejectedTasks[task.Priority], 1)
		return ErrPoolOverloaded
	}
}

// SubmitWithCallback 提交带回调的普通优先级任务
func (p *Pool) SubmitWithCallback(fn func() error, callback func(error)) error {
	return p.Submit(&Task{
		Function: fn,
		Callback: callback,
		Priority: PriorityNormal,
	})
}

// dispatcher 任务分发器：先拿到空闲工作协程，再按优先级取任务
func (p *Pool) dispatcher() {
	defer p.wg.Done()

	for {
		var workerTaskChan chan *Task
		select {
		case workerTaskChan = <-p.WorkerPool:
		case <-p.ctx.Done():
			return
		}

		task := p.next()
		if task == nil {
			return
		}
		select {
		case workerTaskChan <- task:
		case <-p.ctx.Done():
			return
		}
	}
}

// next 取下一个任务，高优先级有任务时不会取低优先级
func (p *Pool) next() *Task {
	for i := priorityLevels - 1; i >= 0; i-- {
		select {
		case task := <-p.queues[i]:
			return task
		default:
		}
	}

	// 所有队列都空，等第一个到达的任务
	select {
	case task := <-p.queues[PriorityHigh]:
		return task
	case task := <-p.queues[PriorityNormal]:
		return task
	case task := <-p.queues[PriorityLow]:
		return task
	case <-p.ctx.Done():
		return nil
	}
}

// start 启动工作协程
func (w *Worker) start(wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		// 将当前工作协程注册到池中
		select {
		case w.WorkerPool <- w.TaskChan:
			// 等待任务
			select {
			case task := <-w.TaskChan:
				w.executeTask(task)
			case <-w.ctx.Done():
				return
			}
		case <-w.ctx.Done():
			return
		}
	}
}

// executeTask 执行任务
func (w *Worker) executeTask(task *Task) {
	atomic.AddInt64(&w.pool.activeTasks, 1)
	defer atomic.AddInt64(&w.pool.activeTasks, -1)

	// 创建带超时的上下文
	ctx, cancel := context.WithTimeout(w.ctx, task.Timeout)
	defer cancel()

	var err error
	done := make(chan error, 1)

	// 在单独的goroutine中执行任务
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- NewTaskPanicError(r)
			}
		}()
		done <- task.Function()
	}()

	// 等待任务完成或超时
	select {
	case err = <-done:
		// 任务正常完成或出错
	case <-ctx.Done():
		err = ctx.Err()
	}

	// 重试逻辑
	if err != nil && task.Retry > 0 {
		task.Retry--
		select {
		case <-time.After(task.RetryDelay): // 等待后重试
		case <-w.ctx.Done():
			return
		}
		w.executeTask(task)
		return
	}

	// 更新统计信息
	if err != nil {
		atomic.AddInt64(&w.pool.failedTasks, 1)
	} else {
		atomic.AddInt64(&w.pool.completedTasks, 1)
	}

	// 执行回调
	if task.Callback != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("任务回调发生panic: %v", r)
				}
			}()
			task.Callback(err)
		}()
	}
}

// statsCollector 统计信息收集器
func (p *Pool) statsCollector() {
	defer p.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			total := atomic.LoadInt64(&p.totalTasks)
			completed := atomic.LoadInt64(&p.completedTasks)
			failed := atomic.LoadInt64(&p.failedTasks)
			active := atomic.LoadInt64(&p.activeTasks)

			log.Printf("Goroutine池统计: 总任务=%d, 已完成=%d, 失败=%d, 活跃=%d, 排队(高/中/低)=%d/%d/%d",
				total, completed, failed, active,
				len(p.queues[PriorityHigh]), len(p.queues[PriorityNormal]), len(p.queues[PriorityLow]))

		case <-p.ctx.Done():
			return
		}
	}
}

// GetStats 获取统计信息
func (p *Pool) GetStats() map[string]int64 {
	stats := map[string]int64{
		"total_tasks":     atomic.LoadInt64(&p.totalTasks),
		"completed_tasks": atomic.LoadInt64(&p.completedTasks),
		"failed_tasks":    atomic.LoadInt64(&p.failedTasks),
		"active_tasks":    atomic.LoadInt64(&p.activeTasks),
		"worker_count":    int64(len(p.Workers)),
	}
	for i := range p.queues {
		name := Priority(i).String()
		stats["queued_"+name] = int64(len(p.queues[i]))
		stats["rejected_"+name] = atomic.LoadInt64(&p.rejectedTasks[i])
	}
	return stats
}

// 错误定义
var (
	ErrPoolOverloaded = NewPoolError("goroutine pool is overloaded")
)

type PoolError struct {
	Message string
}

func (e *PoolError) Error() string {
	return e.Message
}

func NewPoolError(message string) *PoolError {
	return &PoolError{Message: message}
}

type TaskPanicError struct {
	Panic interface{}
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task panic: %v", e.Panic)
}

func NewTaskPanicError(panic interface{}) *TaskPanicError {
	return &TaskPanicError{Panic: panic}
}

// Stop 停止全局协程池
func Stop() {
	GetPool().Stop()
}
