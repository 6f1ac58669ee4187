package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"example.com/BoltServer/cmd/version"
	"example.com/BoltServer/utils"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boltserver [command] [flags]",
	Short: "boltserver 是一个远程执行调度服务",
	Long: `boltserver 是一个远程执行调度服务。
接收描述远程节点和工作单元(任务/脚本/命令)的执行请求,
通过 SSH 或 WinRM 并发执行, 返回按目标聚合的结构化结果。`,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			version.PrintFullVersion()
			os.Exit(0)
		}
		cmd.Help()
		os.Exit(0)
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if debugFlag {
			utils.Logger.SetLogLevel("debug")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "显示版本信息")
	rootCmd.PersistentFlags().Bool("debug", false, "开启调试日志")

	rootCmd.AddCommand(NewCmdServe())
	rootCmd.AddCommand(NewCmdRequest())
	rootCmd.AddCommand(NewCmdMCP())
}
