// Package history 按群保存最近的聊天记录，回复时作为上下文给模型
package history

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Line 一条聊天记录
type Line struct {
	MessageID int64
	UserID    int64
	Name      string
	Content   string
	Time      time.Time
	Self      bool // 机器人自己说的
}

// Recorder 每个群一个环形缓冲区
type Recorder struct {
	size   int
	mu     sync.Mutex
	groups map[int64]*ring[Line]
}

// NewRecorder 创建聊天记录，size 为每个群保留的条数
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 50
	}
	return &Recorder{size: size, groups: make(map[int64]*ring[Line])}
}

// Add 追加一条记录，空内容忽略
func (r *Recorder) Add(groupID int64, line Line) {
	if strings.TrimSpace(line.Content) == "" {
		return
	}
	if line.Time.IsZero() {
		line.Time = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.groups[groupID]
	if !ok {
		buf = newRing[Line](r.size)
		r.groups[groupID] = buf
	}
	buf.push(line)
}

// Recent 最近 n 条记录（从旧到新），跳过 excludeID 对应的消息
func (r *Recorder) Recent(groupID int64, n int, excludeID int64) []Line {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.groups[groupID]
	if !ok {
		return nil
	}

	lines := buf.last(n + 1)
	out := lines[:0]
	for _, l := range lines {
		if excludeID != 0 && l.MessageID == excludeID {
			continue
		}
		out = append(out, l)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Len 某个群当前保存的条数
func (r *Recorder) Len(groupID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if buf, ok := r.groups[groupID]; ok {
		return buf.len()
	}
	return 0
}

// Format 渲染成提示词里的聊天记录
func Format(lines []Line, selfName string) string {
	var b strings.Builder
	for _, l := range lines {
		name := l.Name
		if l.Self {
			name = selfName + "（你）"
		}
		fmt.Fprintf(&b, "[%s] %s(ID:%d): %s\n", l.Time.Format("15:04"), name, l.UserID, l.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
