// 手动触发一次挑战尝试清扫
//
// 清扫已集成到主应用的后台任务中（按 admission.sweep_interval 执行）。
// 此脚本仅用于手动触发，例如服务长时间停机后一次性终结所有超时的尝试。
// 多实例部署时应配置 admission.lock_backend=redis，与运行中的服务共用锁。
//
// 用法: go run scripts/sweep_attempts.go -config configs

package main

import (
	"collabhub_backend/internal/config"
	"collabhub_backend/internal/repository"
	"collabhub_backend/internal/service"
	"collabhub_backend/pkg/database"
	"collabhub_backend/pkg/lock"
	"collabhub_backend/pkg/logger"
	"collabhub_backend/pkg/sandbox"
	"context"
	"flag"
	"log"
	"time"
)

func main() {
	configDir := flag.String("config", "configs", "配置文件目录")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Redis 连接失败: %v", err)
	}

	var runner sandbox.Runner
	if cfg.Sandbox.Driver == "judge0" {
		runner = sandbox.NewJudge0Runner(sandbox.Judge0Options{URL: cfg.Judge0.URL, APIKey: cfg.Judge0.APIKey, Host: cfg.Judge0.Host})
	} else if runner, err = sandbox.NewDockerRunner(sandbox.DockerOptions{Host: cfg.Sandbox.DockerHost, Pull: cfg.Sandbox.DockerPull}); err != nil {
		log.Fatalf("沙箱初始化失败: %v", err)
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if rdb != nil && cfg.Admission.LockBackend == "redis" {
		locker = lock.NewRedisLocker(rdb, "collabhub:lock:", cfg.Admission.LockTTL)
	} else {
		log.Println("警告: 使用本地锁，与运行中的服务之间只依赖条件更新保证一致")
	}

	projects := repository.NewProjectRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	recommendations := repository.NewRecommendationRepository(db)
	algoConfig := service.NewAlgorithmConfigService(repository.NewAlgorithmConfigRepository(db), cfg)
	evaluator := service.NewEvaluationService(runner, nil, cfg.Sandbox)
	admission := service.NewAdmissionService(projects, attemptRepo, recommendations, algoConfig, db)
	attempts := service.NewAttemptService(attemptRepo, evaluator, admission, algoConfig, nil, locker, db, cfg.Admission)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	log.Println("手动触发挑战尝试清扫...")
	expired, abandoned := service.NewAttemptSweeper(attempts, cfg.Admission.SweepInterval).SweepOnce(ctx)
	log.Printf("完成！过期 %d 个，放弃 %d 个", expired, abandoned)
}
