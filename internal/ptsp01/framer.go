package ptsp01

import (
	"strings"
	"sync"
)

// LineTerminator 控制台行结束符
const LineTerminator = "\r\n"

// LineFramer 将字节流切分为完整行，保留末尾不完整片段
type LineFramer struct {
	mu  sync.Mutex
	buf strings.Builder
}

// Append 追加原始字节
func (f *LineFramer) Append(b []byte) {
	if len(b) == 0 {
		return
	}
	f.mu.Lock()
	f.buf.Write(b)
	f.mu.Unlock()
}

// Lines 取出新完成的行（不含结束符），已返回的行不会再次出现
func (f *LineFramer) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := f.buf.String()
	idx := strings.LastIndex(data, LineTerminator)
	if idx < 0 {
		return nil
	}
	lines := strings.Split(data[:idx], LineTerminator)
	rest := data[idx+len(LineTerminator):]
	f.buf.Reset()
	f.buf.WriteString(rest)
	return lines
}

// Pending 末尾尚未结束的片段（空闲时即 shell 提示符）
func (f *LineFramer) Pending() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

// Reset 清空缓冲并以 seed 作为新的片段
func (f *LineFramer) Reset(seed string) {
	f.mu.Lock()
	f.buf.Reset()
	f.buf.WriteString(seed)
	f.mu.Unlock()
}
