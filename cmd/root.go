// Package cmd wires the command-line front-end: it resolves inputs
// (including repository URLs), assembles pipeline options from flags,
// config file, and environment, and runs the aggregation.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"automd/pkg/aggregate"
	"automd/pkg/gitrepo"
	"automd/pkg/logging"
)

var cfgFile string

// RootCmd is the aggregation command itself; subcommands cover serving
// and version info.
var RootCmd = &cobra.Command{
	Use:   "automd [inputs...]",
	Short: "Aggregate files, folders, archives, and repositories into Markdown",
	Long: `automd walks files, folders, zip archives, and remote repositories and
renders their text content into consolidated Markdown documents with a
table of contents and per-unit metadata, ready for LLM ingestion.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAggregate,
}

// Execute runs the CLI. Errors are already logged by the time they
// reach the caller; main only converts them to an exit code.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.config/automd/config.yaml)")

	flags := RootCmd.Flags()
	flags.StringSliceP("input", "i", nil, "Input path or repository URL (repeatable; positional args work too)")
	flags.StringP("output", "o", "", "Output file (single-file mode) or directory (multi-file mode)")
	flags.BoolP("single-file", "s", false, "Combine all content into one Markdown document")
	flags.IntP("repo-depth", "d", 0, "Clone depth for repository inputs (0 = full history)")
	flags.Bool("no-metadata", false, "Omit the per-section Metadata block")
	flags.Bool("no-toc", false, "Omit the Table of Contents in single-file mode")
	flags.BoolP("verbose", "v", false, "Verbose logging")
	flags.String("gitignore", "", "Gitignore-style pattern file applied to every input")
	flags.StringSlice("ignore-path", nil, "Path name or prefix to exclude (repeatable)")
	flags.Int("max-file-size", aggregate.DefaultMaxFileSizeKB, "Per-file size ceiling in KB; larger files are skipped")
	flags.IntP("workers", "w", 0, "Worker pool size (0 = number of CPUs)")
	flags.Int("max-archive-depth", aggregate.DefaultMaxArchiveDepth, "Nested archive expansion bound")
	flags.Bool("no-ignore", false, "Do not auto-load each root's own .gitignore")
	flags.Bool("count-tokens", false, "Count tokens across rendered content")
	flags.String("token-model", aggregate.DefaultTokenModel, "Model whose encoding is used for token counting")
	flags.String("title", "", "Document title in single-file mode")
	flags.Bool("clipboard", false, "Copy the combined document to the clipboard (single-file mode)")
	flags.Duration("clone-timeout", 5*time.Minute, "Timeout for cloning each repository input")

	for flag, key := range map[string]string{
		"input":             "input",
		"output":            "output",
		"single-file":       "single_file",
		"repo-depth":        "repo_depth",
		"no-metadata":       "no_metadata",
		"no-toc":            "no_toc",
		"verbose":           "verbose",
		"gitignore":         "gitignore",
		"ignore-path":       "ignore_paths",
		"max-file-size":     "max_file_size",
		"workers":           "workers",
		"max-archive-depth": "max_archive_depth",
		"no-ignore":         "no_ignore",
		"count-tokens":      "count_tokens",
		"token-model":       "token_model",
		"title":             "title",
		"clipboard":         "clipboard",
		"clone-timeout":     "clone_timeout",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetDefault("single_file", false)
	viper.SetDefault("no_metadata", false)
	viper.SetDefault("no_toc", false)
	viper.SetDefault("repo_depth", 0)
	viper.SetDefault("max_file_size", aggregate.DefaultMaxFileSizeKB)
	viper.SetDefault("max_archive_depth", aggregate.DefaultMaxArchiveDepth)
	viper.SetDefault("token_model", aggregate.DefaultTokenModel)
}

// initConfig layers the option sources: defaults < config file < env
// (AUTOMD_*) < flags.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(filepath.Join(home, ".config", "automd"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AUTOMD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

func runAggregate(cmd *cobra.Command, args []string) error {
	inputs := append(viper.GetStringSlice("input"), args...)
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs: pass paths or repository URLs via --input or as arguments")
	}
	output := viper.GetString("output")
	if output == "" {
		return fmt.Errorf("no output: pass a destination via --output")
	}

	logger, err := logging.New(viper.GetBool("verbose"))
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logging.Sync(logger)

	opts := aggregate.DefaultOptions()
	opts.SingleFile = viper.GetBool("single_file")
	opts.IncludeMetadata = !viper.GetBool("no_metadata")
	opts.IncludeTOC = !viper.GetBool("no_toc")
	opts.RepoDepth = viper.GetInt("repo_depth")
	opts.GitignorePath = viper.GetString("gitignore")
	opts.IgnorePaths = viper.GetStringSlice("ignore_paths")
	opts.Verbose = viper.GetBool("verbose")
	opts.MaxFileSizeKB = viper.GetInt("max_file_size")
	opts.MaxWorkers = viper.GetInt("workers")
	opts.MaxArchiveDepth = viper.GetInt("max_archive_depth")
	opts.NoIgnore = viper.GetBool("no_ignore")
	opts.CountTokens = viper.GetBool("count_tokens")
	opts.TokenModel = viper.GetString("token_model")
	opts.Title = viper.GetString("title")

	ctx := cmd.Context()
	roots, cleanup, err := resolveInputs(ctx, inputs, opts.RepoDepth, viper.GetDuration("clone_timeout"), logger)
	defer cleanup()
	if err != nil {
		logger.Error("Resolving inputs failed", zap.Error(err))
		return err
	}

	summary, err := aggregate.New(opts, logger).Run(ctx, roots, output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Aborted after processing %d unit(s): %v\n", summary.Processed, err)
		return err
	}

	fmt.Printf("Completed: %d processed, %d skipped, %d errored in %s\n",
		summary.Processed, summary.Skipped, summary.Errored, summary.Elapsed.Round(time.Millisecond))
	if summary.Tokens > 0 {
		fmt.Printf("Tokens: %d\n", summary.Tokens)
	}

	if viper.GetBool("clipboard") {
		if err := copyToClipboard(opts.SingleFile, output); err != nil {
			logger.Warn("Clipboard copy failed", zap.Error(err))
		} else {
			fmt.Println("Copied output to clipboard")
		}
	}
	return nil
}

// resolveInputs turns the mixed input list into local roots, cloning
// repository URLs into temp directories. The returned cleanup removes
// every clone and is safe to call even when resolution failed partway.
func resolveInputs(ctx context.Context, inputs []string, depth int, timeout time.Duration, logger *zap.Logger) ([]string, func(), error) {
	var roots []string
	var cleanups []func()
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	for _, input := range inputs {
		if !gitrepo.IsRepoURL(input) {
			roots = append(roots, input)
			continue
		}

		cloneCtx, cancel := context.WithTimeout(ctx, timeout)
		dir, remove, err := gitrepo.Clone(cloneCtx, input, depth, logger)
		cancel()
		if err != nil {
			return nil, cleanup, fmt.Errorf("cloning %s: %w", input, err)
		}
		cleanups = append(cleanups, remove)
		roots = append(roots, dir)
	}
	return roots, cleanup, nil
}

func copyToClipboard(singleFile bool, output string) error {
	if !singleFile {
		return fmt.Errorf("clipboard copy requires single-file mode")
	}
	data, err := os.ReadFile(output)
	if err != nil {
		return err
	}
	return clipboard.WriteAll(string(data))
}
