package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harvey-licitacoes/harvey/internal/llm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	dbPath   string
	redisURL string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "harvey",
	Short: "Legal assistant for Brazilian public procurement (licitações)",
	Long: `Harvey is a legal assistant for lawyers and companies taking part in
Brazilian public procurement under Lei 14.133/2021.

Features:
- Case registry for licitação processes
- Edital analysis attached to the current case
- Chat with the Harvey assistant and legal draft generation
- JSON/HTTP API with a generative-text proxy
- Terminal dashboard with one page per section`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.harvey.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/harvey.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis URL for sharing changes between processes (empty: in-process only)")

	// Bind flags to viper
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".harvey")
	}

	// genai.api_key <- HARVEY_GENAI_API_KEY
	viper.SetEnvPrefix("harvey")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "./data/harvey.db")
	v.SetDefault("redis.url", "")
	v.SetDefault("genai.provider", "openai")
	v.SetDefault("genai.endpoint", "")
	v.SetDefault("genai.model", "")
	v.SetDefault("genai.api_key", "")
	v.SetDefault("genai.timeout", llm.DefaultTimeout)
	v.SetDefault("server.bind", "127.0.0.1:3000")
	v.SetDefault("server.token", "")
	v.SetDefault("server.rps", 10)
	v.SetDefault("server.burst", 20)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("uploads.enabled", false)
	v.SetDefault("uploads.dir", "data/uploads")
	v.SetDefault("uploads.patterns", []string{})
	v.SetDefault("uploads.scan_existing", false)
	v.SetDefault("chat.endpoint", "")
	v.SetDefault("chat.openai_base_url", "")
	v.SetDefault("chat.timeout", 30*time.Second)
	v.SetDefault("analysis.backend", "simulated")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return configFrom(viper.GetViper())
}

func configFrom(v *viper.Viper) Config {
	return Config{
		Database: DatabaseConfig{Path: v.GetString("database.path")},
		Redis:    RedisConfig{URL: v.GetString("redis.url")},
		GenAI: llm.ProviderConfig{
			Provider: v.GetString("genai.provider"),
			Endpoint: v.GetString("genai.endpoint"),
			Model:    v.GetString("genai.model"),
			APIKey:   v.GetString("genai.api_key"),
			Timeout:  v.GetDuration("genai.timeout"),
		},
		Server: ServerConfig{
			Bind:      v.GetString("server.bind"),
			Token:     v.GetString("server.token"),
			RPS:       v.GetInt("server.rps"),
			Burst:     v.GetInt("server.burst"),
			StaticDir: v.GetString("server.static_dir"),
		},
		Uploads: UploadsConfig{
			Enabled:      v.GetBool("uploads.enabled"),
			Dir:          v.GetString("uploads.dir"),
			Patterns:     v.GetStringSlice("uploads.patterns"),
			ScanExisting: v.GetBool("uploads.scan_existing"),
		},
		Chat: ChatConfig{
			Endpoint:      v.GetString("chat.endpoint"),
			OpenAIBaseURL: v.GetString("chat.openai_base_url"),
			Timeout:       v.GetDuration("chat.timeout"),
		},
		Analysis: AnalysisConfig{Backend: v.GetString("analysis.backend")},
	}
}

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig     `mapstructure:"database"`
	Redis    RedisConfig        `mapstructure:"redis"`
	GenAI    llm.ProviderConfig `mapstructure:"genai"`
	Server   ServerConfig       `mapstructure:"server"`
	Uploads  UploadsConfig      `mapstructure:"uploads"`
	Chat     ChatConfig         `mapstructure:"chat"`
	Analysis AnalysisConfig     `mapstructure:"analysis"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type ServerConfig struct {
	Bind      string `mapstructure:"bind"`
	Token     string `mapstructure:"token"`
	RPS       int    `mapstructure:"rps"`
	Burst     int    `mapstructure:"burst"`
	StaticDir string `mapstructure:"static_dir"`
}

// UploadsConfig drives the upload directory watcher started by serve.
type UploadsConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Dir          string   `mapstructure:"dir"`
	Patterns     []string `mapstructure:"patterns"`
	ScanExisting bool     `mapstructure:"scan_existing"`
}

// ChatConfig configures both ends of remote chat. Endpoint is the Harvey
// /api/chat URL the chat section posts to; OpenAIBaseURL is where serve's
// /api/chat sends requests that carry their own API key.
type ChatConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// AnalysisConfig selects the edital analysis backend: "simulated" or "llm".
type AnalysisConfig struct {
	Backend string `mapstructure:"backend"`
}
