package kitchen

import (
	"context"
	"log/slog"
	"sync"
)

// Notice is the single operator-facing signal raised per failed change.
type Notice struct {
	OrderID string
	ItemID  string
	Message string
	Err     error
}

type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier writes notices to the default logger.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notice) {
	slog.WarnContext(ctx, n.Message, "orderid", n.OrderID, "itemid", n.ItemID, "error", n.Err)
}

// NoticeLog keeps notices in memory, newest last.
type NoticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *NoticeLog) Notify(_ context.Context, n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

func (l *NoticeLog) Notices() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.notices...)
}
