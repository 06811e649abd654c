// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供各包测试共用的上下文、音频数据与断言辅助
//
// 使用方法:
//
//	ctx := testutil.TestContextWithTimeout(t, 3*time.Second)
//	frame := testutil.PCM(2048)
//	testutil.AssertMessagesEqual(t, expected, actual)
//
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/teddyvoice/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带 30 秒超时的测试上下文，测试结束时自动取消
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文，测试结束时自动取消
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔊 音频数据
// =============================================================================

// PCM 生成 n 字节的 16-bit 小端 PCM 锯齿波。
// 内容按下标确定，便于在顺序与分片测试中比较字节。
func PCM(n int) []byte {
	data := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		sample := uint16((i / 2) * 257)
		data[i] = byte(sample)
		data[i+1] = byte(sample >> 8)
	}
	return data
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertMessagesEqual 按角色与内容比较两个消息切片，忽略时间戳
func AssertMessagesEqual(t testing.TB, expected, actual []types.Message) {
	t.Helper()

	if !assert.Len(t, actual, len(expected), "message count mismatch") {
		return
	}
	for i := range expected {
		assert.Equal(t, expected[i].Role, actual[i].Role, "message[%d] role", i)
		assert.Equal(t, expected[i].Content, actual[i].Content, "message[%d] content", i)
	}
}
