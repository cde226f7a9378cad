package cli

import (
	"github.com/spf13/cobra"

	"price-watch/internal/app"
	"price-watch/internal/storage"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格下跌并通过已配置通道发送告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.Email, "to", "", "收件邮箱")
	simulateCmd.Flags().StringVarP(&simulateOpts.Query, "query", "q", "test product", "商品查询词")
	simulateCmd.Flags().StringVar(&simulateOpts.Target, "target", "1000", "目标价格")
	simulateCmd.Flags().StringVar(&simulateOpts.Price, "price", "950", "模拟的当前最低价")
	simulateCmd.Flags().StringVar(&simulateOpts.Method, "method", storage.NotifyEmail, "通知方式 (email|telegram)")
	_ = simulateCmd.MarkFlagRequired("to")
}
