// cmd/server/main.go
package main

import (
	"log"

	"github.com/Corphon/DeepDetect/internal/app"
	"github.com/Corphon/DeepDetect/internal/config"
	"github.com/Corphon/DeepDetect/internal/di"

	// 注册分类服务提供者
	_ "github.com/Corphon/DeepDetect/internal/llm/providers/anthropic"
	_ "github.com/Corphon/DeepDetect/internal/llm/providers/google"
	_ "github.com/Corphon/DeepDetect/internal/llm/providers/openrouter"
)

func main() {
	log.Println("🚀 启动 DeepDetect 服务器...")

	// 1. 加载配置
	if err := config.InitConfig(); err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}
	cfg := config.GetCurrentConfig()
	log.Printf("✅ 配置加载完成，端口: %s，分类服务: %s", cfg.Port, cfg.LLMProvider)

	// 2. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(); err != nil {
		log.Fatalf("❌ 初始化服务失败: %v", err)
	}
	log.Printf("✅ 所有服务初始化完成，服务数量: %d", len(di.GetContainer().GetNames()))

	// 3. 启动服务器，阻塞直到收到退出信号
	log.Printf("🌐 服务器启动在端口 %s", cfg.Port)
	log.Printf("🔗 访问地址: http://localhost:%s", cfg.Port)

	if err := app.GetApp().Run(); err != nil {
		log.Fatalf("❌ 服务器运行失败: %v", err)
	}
	log.Println("✅ 服务器优雅关闭完成")
}
