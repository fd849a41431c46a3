package backtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"kawase/internal/logger"
)

// SnapshotPNG 用无头浏览器打开渲染好的图表 HTML 并整页截图。
// 通知渠道只收图片，这里把 echarts 页面转成 PNG 附件。
func SnapshotPNG(ctx context.Context, htmlPath, outPath string) error {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return fmt.Errorf("解析图表路径失败: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("图表文件不存在: %w", err)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancelRun()

	var buf []byte
	err = chromedp.Run(runCtx,
		chromedp.EmulateViewport(1280, 1600),
		chromedp.Navigate("file://"+abs),
		// 等 echarts 完成首帧渲染。
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.FullScreenshot(&buf, 90),
	)
	if err != nil {
		return fmt.Errorf("截图失败: %w", err)
	}
	if err := os.WriteFile(outPath, buf, 0o644); err != nil {
		return fmt.Errorf("写入截图失败: %w", err)
	}
	logger.Debugf("图表截图已写入 %s (%d bytes)", outPath, len(buf))
	return nil
}
