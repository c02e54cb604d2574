// 手动导入等级/徽章/每周任务目录
//
// 服务启动时若目录表为空会自动导入，此脚本用于目录文件修改后的重新同步。
// -dry-run 只解析并校验，不写库。
//
// 用法: go run scripts/seed_catalog.go -file configs/catalog.yaml

package main

import (
	"academy_backend/internal/config"
	"academy_backend/internal/repository"
	"academy_backend/internal/service"
	"academy_backend/pkg/database"
	"academy_backend/pkg/logger"
	"context"
	"flag"
	"log"
	"os"
	"time"
)

func main() {
	file := flag.String("file", "", "目录文件路径，留空则使用配置中的 catalog_path / 存储来源")
	dryRun := flag.Bool("dry-run", false, "只校验不写入")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}
	logger.InitLogger(cfg)

	if *dryRun {
		if *file == "" {
			log.Fatal("-dry-run 需要指定 -file")
		}
		f, err := os.Open(*file)
		if err != nil {
			log.Fatalf("打开目录文件失败: %v", err)
		}
		defer f.Close()
		catalog, err := service.ParseCatalog(f)
		if err != nil {
			log.Fatalf("解析目录失败: %v", err)
		}
		catalog.Normalize()
		if err := catalog.Validate(); err != nil {
			log.Fatalf("目录校验失败: %v", err)
		}
		log.Printf("校验通过: %d 个等级, %d 个徽章, %d 个每周任务", len(catalog.Levels), len(catalog.Badges), len(catalog.WeeklyTasks))
		return
	}

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, true)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	var source service.CatalogSource = &service.LocalCatalogSource{}
	if *file == "" {
		if source, err = service.NewCatalogSource(&cfg.Storage); err != nil {
			log.Fatalf("初始化目录来源失败: %v", err)
		}
	} else {
		cfg.Gamification.CatalogPath = *file
	}

	catalog := service.NewCatalogService(
		db,
		repository.NewLevelRepository(db),
		repository.NewBadgeRepository(db),
		repository.NewWeeklyTaskRepository(db),
		source,
		service.NewSettings(cfg.Gamification),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Println("开始导入目录...")
	result, err := catalog.SeedFromSource(ctx)
	if err != nil {
		log.Fatalf("导入失败: %v", err)
	}
	log.Printf("完成！来源 %s: %d 个等级, %d 个徽章, %d 个每周任务", result.Source, result.Levels, result.Badges, result.WeeklyTasks)
}
