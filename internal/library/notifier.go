package library

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/music-hub/internal/logging"
)

// Notice levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Notice 是一次面向用户的非阻塞提示，每个操作最多产生一条。
type Notice struct {
	Level   string    `json:"level"`
	Action  string    `json:"action"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier receives one notice per finished download or removal.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notice)

// Notify makes NotifierFunc satisfy Notifier.
func (f NotifierFunc) Notify(n Notice) {
	f(n)
}

// Inbox 保存最近 capacity 条提示供 /-/notifications 轮询，并同步写入日志。
type Inbox struct {
	mu       sync.Mutex
	capacity int
	notices  []Notice
	logger   *logrus.Logger
}

// NewInbox 创建提示收件箱，capacity <= 0 时取 50。
func NewInbox(capacity int, logger *logrus.Logger) *Inbox {
	if capacity <= 0 {
		capacity = 50
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Inbox{capacity: capacity, logger: logger}
}

func (i *Inbox) Notify(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}
	i.mu.Lock()
	i.notices = append(i.notices, n)
	if over := len(i.notices) - i.capacity; over > 0 {
		i.notices = append([]Notice(nil), i.notices[over:]...)
	}
	i.mu.Unlock()

	entry := i.logger.WithFields(logrus.Fields{
		"action": n.Action,
		"title":  n.Title,
		"level":  n.Level,
	})
	if n.Level == LevelError {
		entry.Warn(n.Message)
		return
	}
	entry.Info(n.Message)
}

// Recent 返回最新在后的提示快照。
func (i *Inbox) Recent() []Notice {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Notice(nil), i.notices...)
}
