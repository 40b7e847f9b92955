// Package notice carries transient, non-fatal user notices.
//
// Every recoverable failure in the access and reconciliation pipelines ends
// up here instead of unwinding into unrelated state.
package notice

import (
	"context"
	"log/slog"
	"sync"

	"boxpeer/pkg/types"
)

type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notice 一条提示
type Notice struct {
	Level   Level
	CID     types.CID
	Message string
	Err     error
}

type Notifier interface {
	Notify(n Notice)
}

// Log 通过 slog 输出
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{}
	if !n.CID.IsZero() {
		attrs = append(attrs, "cid", n.CID)
	}
	if n.Err != nil {
		attrs = append(attrs, "error", n.Err)
	}
	var lvl slog.Level
	switch n.Level {
	case Warning:
		lvl = slog.LevelWarn
	case Error:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger.Log(context.Background(), lvl, n.Message, attrs...)
}

// Discard 丢弃所有提示
type Discard struct{}

func (Discard) Notify(Notice) {}

// Recorder 记录提示 (测试和 CLI 汇总用)
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Fanout 同时通知多个接收者
type Fanout []Notifier

func (f Fanout) Notify(n Notice) {
	for _, x := range f {
		x.Notify(n)
	}
}
