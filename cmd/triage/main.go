package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/support-triage/triage/internal/config"
	"github.com/support-triage/triage/internal/inbox"
	"github.com/support-triage/triage/internal/logging"
	"github.com/support-triage/triage/internal/metrics"
	"github.com/support-triage/triage/internal/pipeline"
	"github.com/support-triage/triage/internal/reply"
)

var (
	cfgFile     string
	inputPath   string
	outputPath  string
	rulesPath   string
	metricsFile string
	logLevel    string
	logFormat   string
	noExternal  bool
)

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if _, err := os.Stat(config.DefaultConfigFile); err == nil {
		return config.DefaultConfigFile
	}
	return ""
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage",
		Short: "Triage - Annotate support emails with urgency, topic, sentiment and a reply",
		Long: `Triage reads a table of customer support emails and writes it back with
five extra columns: likely_urgency, subject_topic, sentiment, summary and
auto_reply.

Labels come from keyword rules. Summaries and replies come from an
OpenAI-compatible API when OPENAI_API_KEY is set, and from built-in
templates otherwise or whenever the API call fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context())
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./triage.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "rule tables file (default is the built-in rules)")
	rootCmd.PersistentFlags().BoolVar(&noExternal, "no-external", false, "never call the external API, use template replies only")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")

	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input .csv, .tsv, .xlsx, directory of .eml files or imaps://host/folder (default "+config.DefaultInput+")")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output .csv, .tsv, .xlsx, .db or .sqlite (default "+config.DefaultOutput+")")
	rootCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics for the run to this textfile")

	// Add commands
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(reportCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var useDefaults, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long:  "Create a triage.yaml with input/output paths, reply settings and the external API model.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(useDefaults, force)
		},
	}

	cmd.Flags().BoolVarP(&useDefaults, "yes", "y", false, "Accept all defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func classifyCmd() *cobra.Command {
	var withReply bool

	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify a single text",
		Long:  "Print the urgency, topic and sentiment of a text given as arguments or on stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd.Context(), cmd.InOrStdin(), args, withReply)
		},
	}

	cmd.Flags().BoolVar(&withReply, "reply", false, "Also generate a summary and reply")

	return cmd
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective rule tables",
		Long:  "Print the rule tables in use as yaml. Save the output, edit it, and pass it back with --rules.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(cmd.OutOrStdout())
		},
	}
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [output]",
		Short: "Show label counts for a processed file",
		Long:  "Read a processed .csv, .tsv, .xlsx, .db or .sqlite file and print how many emails carry each label.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runReport(cmd.Context(), path)
		},
	}
}

// loadConfig merges the config file, the environment and the command line, in that order
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := resolveConfigPath(); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	config.OverrideFromEnv(cfg)

	if inputPath != "" {
		cfg.Input = inputPath
	}
	if outputPath != "" {
		cfg.Output = outputPath
	}
	if rulesPath != "" {
		cfg.Rules = rulesPath
	}
	if metricsFile != "" {
		cfg.MetricsFile = metricsFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if noExternal {
		cfg.Generator.Disabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadRules(cfg *config.Config) (*inbox.Rules, error) {
	if cfg.Rules == "" {
		return inbox.DefaultRules(), nil
	}
	rules, err := inbox.LoadRules(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return rules, nil
}

func runBatch(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}
	classifier, err := inbox.NewClassifier(rules)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		m = metrics.New()
	}

	generator, err := reply.New(cfg, logger, m)
	if err != nil {
		return err
	}

	emails, src, err := pipeline.LoadInput(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("Starting run",
		zap.String("input", displayPath(cfg.Input)),
		zap.String("output", cfg.Output),
		zap.Int("emails", len(emails)),
		zap.String("generator", generator.Name()),
	)

	fmt.Printf("📥 Loaded %d emails from %s\n", len(emails), displayPath(cfg.Input))
	if !cfg.ExternalEnabled() {
		fmt.Println("ℹ️  External API disabled or OPENAI_API_KEY not set - using template replies")
	}
	fmt.Println()

	driver := pipeline.NewDriver(classifier, generator, logger, m)
	driver.OnRecord = func(n, total int, email *inbox.Email, a pipeline.Annotation) {
		fmt.Printf("[%d/%d] %s  %s / %s / %s (%s)\n",
			n, total, truncateString(email.ID, 24), a.Urgency, a.Topic, a.Sentiment, a.ReplySource)
	}

	start := time.Now()
	annotations, report, err := driver.Run(ctx, emails)
	if err != nil {
		return err
	}

	out, err := pipeline.AnnotatedTable(src, annotations)
	if err != nil {
		return err
	}
	if err := pipeline.WriteOutput(ctx, cfg.Output, out); err != nil {
		return err
	}

	elapsed := time.Since(start)
	m.RecordRun(elapsed, time.Now())
	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("Could not write metrics", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}

	logger.Info("Run complete",
		zap.Int("emails", report.Total),
		zap.Int("external", report.External),
		zap.Int("template", report.Template),
		zap.Int("external_failures", report.FailureCount()),
		zap.Duration("elapsed", elapsed),
	)

	printReport(report)
	fmt.Printf("✅ Saved %d annotated emails to %s\n", report.Total, cfg.Output)
	return nil
}

func printReport(report pipeline.Report) {
	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("📊 Summary:")
	fmt.Printf("  Total emails:        %d\n", report.Total)
	printCounts("Urgency", countsOf(report.Urgency))
	printCounts("Topic", countsOf(report.Topic))
	printCounts("Sentiment", countsOf(report.Sentiment))
	if report.External+report.Template > 0 {
		fmt.Printf("  Replies:             %d external, %d template\n", report.External, report.Template)
	}
	if n := report.FailureCount(); n > 0 {
		fmt.Printf("  ⚠️  External failures: %d", n)
		printInline(report.ExternalFailures)
	}
	fmt.Println()
}

func countsOf[K ~string](m map[K]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Printf("  %-20s", title+":")
	printInline(counts)
}

// printInline prints counts sorted by descending count, then by name
func printInline(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	fmt.Println(" " + strings.Join(parts, ", "))
}

func runClassify(ctx context.Context, stdin io.Reader, args []string, withReply bool) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}
	classifier, err := inbox.NewClassifier(rules)
	if err != nil {
		return err
	}

	cls := classifier.ClassifyText(text)
	fmt.Printf("Urgency:   %s\n", cls.Urgency)
	fmt.Printf("Topic:     %s\n", cls.Topic)
	fmt.Printf("Sentiment: %s\n", cls.Sentiment)

	if !withReply {
		return nil
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	generator, err := reply.New(cfg, logger, nil)
	if err != nil {
		return err
	}
	res := generator.Generate(ctx, reply.Request{
		Email:     &inbox.Email{Body: text},
		Body:      cls.Body,
		Urgency:   cls.Urgency,
		Topic:     cls.Topic,
		Sentiment: cls.Sentiment,
	})
	if res.Err != nil {
		return fmt.Errorf("failed to generate reply: %w", res.Err)
	}

	fmt.Println()
	fmt.Printf("Summary (%s):\n%s\n", res.Source, res.Summary)
	fmt.Println()
	fmt.Printf("Reply:\n%s\n", res.Reply)
	return nil
}

func runRules(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rules, err := loadRules(cfg)
	if err != nil {
		return err
	}
	// Validate before printing so a broken file is reported, not echoed
	if _, err := inbox.NewClassifier(rules); err != nil {
		return err
	}

	data, err := rules.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize rules: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func runReport(ctx context.Context, path string) error {
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Output
	}

	t, err := pipeline.ReadOutput(ctx, path)
	if err != nil {
		return err
	}
	annotations, err := pipeline.AnnotationsFromTable(t)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("📂 %s\n", path)
	printReport(pipeline.Summarize(annotations))
	return nil
}

func runInit(useDefaults, force bool) error {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.DefaultConfigFile
	}
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.Default()

	if !useDefaults {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println("📮 Triage Configuration Setup")
		fmt.Println("==============================")
		fmt.Println()
		fmt.Println("Press Enter to keep the value in brackets.")
		fmt.Println()

		cfg.Input = promptDefault(reader, "Input file or .eml directory", cfg.Input)
		cfg.Output = promptDefault(reader, "Output file (.csv, .tsv, .xlsx, .db)", cfg.Output)
		cfg.Columns.Body = promptDefault(reader, "Body column name", cfg.Columns.Body)
		cfg.Reply.Signature = promptDefault(reader, "Reply signature", cfg.Reply.Signature)

		fmt.Println()
		fmt.Println("🤖 External API (the key itself is read from OPENAI_API_KEY)")
		fmt.Println()
		cfg.Generator.Model = promptDefault(reader, "  Model", cfg.Generator.Model)
		cfg.Generator.BaseURL = promptDefault(reader, "  Base URL (empty for api.openai.com)", cfg.Generator.BaseURL)
		if rpm := promptDefault(reader, "  Requests per minute (0 = unlimited)", strconv.Itoa(cfg.Generator.RequestsPerMinute)); rpm != "" {
			n, err := strconv.Atoi(rpm)
			if err != nil {
				return fmt.Errorf("requests per minute: %w", err)
			}
			cfg.Generator.RequestsPerMinute = n
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Printf("✅ Configuration saved to: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Export OPENAI_API_KEY to enable generated replies (optional)")
	fmt.Println("  2. Run 'triage rules > rules.yaml' to customize the keyword rules")
	fmt.Println("  3. Run 'triage' to annotate your emails")

	return nil
}

func promptDefault(reader *bufio.Reader, message, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", message, def)
	} else {
		fmt.Printf("%s: ", message)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// displayPath hides a password embedded in a mailbox URL
func displayPath(p string) string {
	if inbox.IsMailboxURL(p) {
		if u, err := url.Parse(p); err == nil {
			return u.Redacted()
		}
	}
	return p
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
