package audit

/*
Файл agentfs.go — пакетная запись событий аудита в хранилище.

Используется генератором (cmd/seed), который заливает синтетический поток в audit_events,
откуда его затем читает консоль. Запись идет через буферизованный канал: Log не блокирует
вызывающего, воркер копит пачку и сбрасывает ее по размеру или по таймеру.
Остановка по drain pattern: канал закрывается, воркер вычитывает остаток и делает финальный flush.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются события.
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// AgentFSOptions — параметры буфера и пачек.
type AgentFSOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (o AgentFSOptions) withDefaults() AgentFSOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	return o
}

type AgentFS struct {
	ch     chan Event
	repo   StorageInterface
	opts   AgentFSOptions
	logger *zap.Logger
	wg     sync.WaitGroup

	isClosed atomic.Bool
	written  atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

func NewAgentFS(repo StorageInterface, opts AgentFSOptions, logger *zap.Logger) *AgentFS {
	opts = opts.withDefaults()
	return &AgentFS{
		ch:     make(chan Event, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.With(zap.String("mod", "agentfs")),
	}
}

func (fs *AgentFS) Start() {
	fs.wg.Add(1)
	go fs.worker()
}

// Stop закрывает вход и ждет, пока воркер допишет остаток буфера.
func (fs *AgentFS) Stop() {
	if !fs.isClosed.CompareAndSwap(false, true) {
		return
	}
	fs.logger.Info("stopping writer: closing channel and flushing buffer...")
	close(fs.ch)
	fs.wg.Wait()
	fs.logger.Info("writer stopped gracefully",
		zap.Int64("written", fs.written.Load()),
		zap.Int64("dropped", fs.dropped.Load()),
		zap.Int64("failed", fs.failed.Load()))
}

// Log ставит событие в очередь. При переполнении буфера событие сбрасывается (load shedding).
func (fs *AgentFS) Log(event Event) (queued bool) {
	if fs.isClosed.Load() {
		fs.logger.Warn("audit event dropped: writer is stopping", zap.String("id", event.ID))
		fs.dropped.Add(1)
		return false
	}

	// Stop мог закрыть канал между проверкой флага и отправкой
	defer func() {
		if recover() != nil {
			fs.dropped.Add(1)
			queued = false
		}
	}()

	select {
	case fs.ch <- event:
		return true
	default:
		fs.dropped.Add(1)
		fs.logger.Error("audit_buffer_overflow",
			zap.String("id", event.ID),
			zap.String("source", string(event.Source)))
		return false
	}
}

// Stats — сколько событий записано, сброшено при переполнении и потеряно на ошибках хранилища.
func (fs *AgentFS) Stats() (written, dropped, failed int64) {
	return fs.written.Load(), fs.dropped.Load(), fs.failed.Load()
}

func (fs *AgentFS) worker() {
	defer fs.wg.Done()

	batch := make([]Event, 0, fs.opts.BatchSize)
	ticker := time.NewTicker(fs.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: на остановке родительский контекст уже может быть отменен
		if err := fs.repo.WriteBatch(context.Background(), batch); err != nil {
			fs.failed.Add(int64(len(batch)))
			fs.logger.Error("audit flush failed", zap.Int("batch", len(batch)), zap.Error(err))
		} else {
			fs.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-fs.ch:
			if !ok {
				flush()
				fs.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= fs.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
