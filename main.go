/**
 * VoxFlow 主入口文件
 *
 * 这是 Wails 应用的启动点，负责：
 * 1. 创建 App 实例
 * 2. 启动 Wails 运行时
 * 3. 桥接生命周期回调
 */

package main

import (
	"context"
	"embed"
	"log"

	"github.com/chenyang-zz/voxflow/internal/app"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

/**
 * 主函数
 *
 * 应用的入口点，负责初始化并启动 Wails 应用
 */
func main() {
	voxflowApp := app.New()

	err := wails.Run(&options.App{
		/** 应用标题 */
		Title: "VoxFlow",

		/** 状态面板窗口尺寸（像素） */
		Width:  960,
		Height: 640,

		/** 窗口背景色 */
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 255},

		/**
		 * AssetServer 配置
		 * 用于服务前端静态文件
		 */
		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		/**
		 * 将 App 实例绑定到 Wails
		 * 前端通过生成的绑定访问导出的方法
		 */
		Bind: []interface{}{
			voxflowApp,
		},

		/**
		 * OnStartup 在应用启动时调用
		 * 装配调度引擎、事件 tap 和存储
		 */
		OnStartup: func(ctx context.Context) {
			if err := voxflowApp.Startup(ctx); err != nil {
				log.Fatalf("Failed to startup: %v", err)
			}
		},

		/**
		 * OnShutdown 在应用关闭时调用
		 * 释放事件 tap、刷新存储缓冲区
		 */
		OnShutdown: func(ctx context.Context) {
			voxflowApp.Shutdown()
		},
	})

	if err != nil {
		log.Fatalf("Error: %s", err.Error())
	}
}
