package runctx

import (
	"sync"
	"time"
)

const maxStoredMessages = 500

// MessageLog keeps timestamped "[HH:MM:SS] msg" lines for status polling and
// optionally forwards each line to publish.
type MessageLog struct {
	mu      sync.Mutex
	lines   []string
	now     func() time.Time
	publish func(line string)
}

func NewMessageLog(publish func(line string)) *MessageLog {
	return &MessageLog{now: time.Now, publish: publish}
}

func (l *MessageLog) Message(msg string) {
	line := "[" + l.now().Format("15:04:05") + "] " + msg

	l.mu.Lock()
	l.lines = append(l.lines, line)
	if len(l.lines) > maxStoredMessages {
		l.lines = append([]string(nil), l.lines[len(l.lines)-maxStoredMessages:]...)
	}
	l.mu.Unlock()

	if l.publish != nil {
		l.publish(line)
	}
}

// Recent returns at most the last n lines, oldest first.
func (l *MessageLog) Recent(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(l.lines) {
		n = len(l.lines)
	}
	return append([]string(nil), l.lines[len(l.lines)-n:]...)
}

func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}
