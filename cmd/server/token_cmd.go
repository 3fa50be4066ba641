package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mplazax/software-engineering-agh-sub000/pkg/jwt"
)

// newTokenCmd 签发本地调试用的 Access Token，线上由外部认证服务签发
func newTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "签发调试用 Access Token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(userID); err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			token, err := jwt.NewManager(&cfg.Auth).GenerateAccessToken(userID, role)
			if err != nil {
				return fmt.Errorf("签发 Token 失败: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "用户 ID（UUID）")
	cmd.Flags().StringVar(&role, "role", "teacher", "角色: teacher | leader | coordinator | admin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
