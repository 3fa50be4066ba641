package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mplazax/software-engineering-agh-sub000/pkg/database"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移（--down N 回滚 N 步）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
			if err != nil {
				return fmt.Errorf("数据库连接失败: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
			}
			defer sqlDB.Close()

			if down > 0 {
				return database.RollbackMigrations(sqlDB, down, logger)
			}
			return database.RunMigrations(sqlDB, logger)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "回滚的迁移步数")
	return cmd
}
