package command

import (
	"strings"
	"sync"
)

// BufferWriter 实现 io.Writer，收集 Cobra 的 Out/Err 输出，执行结束后作为一条回复发送。
// 命令可能在子 goroutine 中打印，因此写入受锁保护。
type BufferWriter struct {
	mu  sync.Mutex
	buf strings.Builder
}

// NewBufferWriter 创建一个新的 BufferWriter。
func NewBufferWriter() *BufferWriter {
	return &BufferWriter{}
}

// Write 追加输出。
func (w *BufferWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// String 返回去除首尾空白后的累计输出。
func (w *BufferWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(w.buf.String())
}
