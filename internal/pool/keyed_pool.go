package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task 一个工作单元
type Task func(ctx context.Context) error

// KeyedPoolConfig 池配置
type KeyedPoolConfig struct {
	// Workers worker 数，即分片数
	Workers int `json:"workers"`
	// QueueSize 每个 worker 的队列长度
	QueueSize int `json:"queue_size"`
	// PanicHandler 任务 panic 时调用
	PanicHandler func(key string, recovered any) `json:"-"`
	// OnError 任务返回错误时调用
	OnError func(key string, err error) `json:"-"`
}

// DefaultKeyedPoolConfig 返回默认配置
func DefaultKeyedPoolConfig() KeyedPoolConfig {
	return KeyedPoolConfig{
		Workers:   16,
		QueueSize: 64,
	}
}

type keyedTask struct {
	key  string
	ctx  context.Context
	task Task
}

// KeyedPool 按键分片的 goroutine 池
type KeyedPool struct {
	cfg    KeyedPoolConfig
	shards []chan keyedTask

	// mu 保证 Close 关闭通道时没有正在进行的发送
	mu     sync.RWMutex
	closed atomic.Bool
	wg     sync.WaitGroup

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewKeyedPool 创建并启动 worker
func NewKeyedPool(cfg KeyedPoolConfig) *KeyedPool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultKeyedPoolConfig().Workers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	p := &KeyedPool{
		cfg:    cfg,
		shards: make([]chan keyedTask, cfg.Workers),
	}
	for i := range p.shards {
		p.shards[i] = make(chan keyedTask, cfg.QueueSize)
		p.wg.Add(1)
		go p.worker(p.shards[i])
	}
	return p
}

func (p *KeyedPool) shard(key string) chan keyedTask {
	return p.shards[xxhash.Sum64String(key)%uint64(len(p.shards))]
}

// Submit 把任务排入键对应的 worker，队列满时阻塞直到有空位或 ctx 结束
func (p *KeyedPool) Submit(ctx context.Context, key string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.shard(key) <- keyedTask{key: key, ctx: ctx, task: task}:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}
}

// TrySubmit 非阻塞提交，队列满时返回 ErrPoolFull
func (p *KeyedPool) TrySubmit(ctx context.Context, key string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.shard(key) <- keyedTask{key: key, ctx: ctx, task: task}:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *KeyedPool) worker(queue <-chan keyedTask) {
	defer p.wg.Done()
	for t := range queue {
		p.active.Add(1)
		err := p.execute(t)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
			if p.cfg.OnError != nil {
				p.cfg.OnError(t.key, err)
			}
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *KeyedPool) execute(t keyedTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.cfg.PanicHandler != nil {
				p.cfg.PanicHandler(t.key, r)
			}
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.task(t.ctx)
}

// Close 停止接收任务，等待已排队的任务执行完
func (p *KeyedPool) Close() {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return
	}
	for _, q := range p.shards {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats 返回统计
func (p *KeyedPool) Stats() KeyedPoolStats {
	queued := 0
	for _, q := range p.shards {
		queued += len(q)
	}
	return KeyedPoolStats{
		Workers:   len(p.shards),
		Active:    int(p.active.Load()),
		Queued:    queued,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// KeyedPoolStats 池统计
type KeyedPoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
