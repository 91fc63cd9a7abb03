package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kestrelworks/agentchat/pkg/config"
	"github.com/kestrelworks/agentchat/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentchat",
	Short: "Streaming chat client for Bedrock AgentCore runtimes",
	Long: `agentchat invokes a Bedrock AgentCore runtime endpoint and reassembles
the streamed response into an ordered transcript of text and tool-call
blocks, live while the reply is still arriving.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		app, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := context.Background()

		if prompt := viper.GetString("prompt"); prompt != "" {
			return app.RunOnce(ctx, prompt)
		}
		return app.RunInteractive(ctx)
	},
	SilenceUsage: true,
}

func setup() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", ".agentchat/settings.yaml", "config file")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.Flags().StringP("prompt", "p", "", "send a single prompt and exit")
	viper.BindPFlag("prompt", rootCmd.Flags().Lookup("prompt"))

	rootCmd.Flags().Bool("continue", false, "resume the most recent stored session")
	viper.BindPFlag("continue", rootCmd.Flags().Lookup("continue"))

	rootCmd.Flags().Bool("greet", false, "open the conversation with the agent's greeting")
	viper.BindPFlag("greet", rootCmd.Flags().Lookup("greet"))

	viper.SetDefault("agent.region", "us-east-1")
	viper.SetDefault("agent.qualifier", "DEFAULT")

	viper.SetDefault("auth.bearer_token_env", "AGENTCORE_BEARER_TOKEN")

	viper.SetDefault("session.actor_id", "agentchat-cli")

	viper.SetDefault("history.enabled", true)
	viper.SetDefault("history.path", "./.agentchat/history.db")

	viper.SetDefault("server.listen", ":8081")
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	viper.SetDefault("logging.log_file", "./.agentchat/system.log")
	viper.SetDefault("logging.preserve", true)
	viper.SetDefault("logging.level", "info")
}
