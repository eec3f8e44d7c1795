package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var cfgFile string
var logger *zap.SugaredLogger
var operator string
var resultsDir string

var rootCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Authorized defensive network exposure assessment (connect-probe scanning only)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init config
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath("$HOME")
			viper.SetConfigName(".sweep-cli")
			viper.SetConfigType("yaml")
		}

		_ = viper.ReadInConfig()
		resultsDir = viper.GetString("results_dir")
		if resultsDir == "" {
			resultsDir = "./results"
		}

		if err := os.MkdirAll(resultsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create results directory: %s", err.Error())
		}

		logger = newLogger(viper.GetString("log_file"))

		// ensure operator is set (via flag or env default)
		if operator == "" {
			if env := os.Getenv("USER"); env != "" {
				operator = env
			} else if env := os.Getenv("LOGNAME"); env != "" {
				operator = env
			}
		}
		if operator == "" {
			return fmt.Errorf("operator identity is required (use --operator or set USER env)")
		}

		if abs, err := filepath.Abs(resultsDir); err == nil {
			resultsDir = abs
		}

		logger.Infof("operator=%s results_dir=%s", operator, resultsDir)

		return applyConfigDefaults()
	},
}

// newLogger builds the process logger. With a log file configured the
// JSON log stream goes through a size-rotated sink instead of stderr.
func newLogger(logFile string) *zap.SugaredLogger {
	if logFile == "" {
		l, _ := zap.NewProduction()
		return l.Sugar()
	}

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	})
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		sink,
		zap.InfoLevel,
	)
	return zap.New(core).Sugar()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sweep-cli.yaml)")

	defaultOperator := os.Getenv("USER")
	rootCmd.PersistentFlags().StringVarP(&operator, "operator", "o", defaultOperator, "operator name (or set via USER env)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
