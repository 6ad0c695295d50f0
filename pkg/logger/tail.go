package logger

import (
	"bytes"
	"sync"
)

// tailBuffer 固定容量的日志行环形缓冲。
// io.Writer 实现按行切分；写入方是 logrus 的 MultiWriter，一次 Write 对应一条日志。
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{lines: make([]string, capacity)}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		b.lines[b.next] = string(line)
		b.next = (b.next + 1) % len(b.lines)
		if b.next == 0 {
			b.full = true
		}
	}
	return len(p), nil
}

// Lines 返回时间顺序的最近 n 行（n<=0 表示全部）。
func (b *tailBuffer) Lines(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	if b.full {
		out = append(out, b.lines[b.next:]...)
		out = append(out, b.lines[:b.next]...)
	} else {
		out = append(out, b.lines[:b.next]...)
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
