package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"kibalert/internal/models"
	"kibalert/internal/schedule"
)

const defaultPrompt = "Analyse the data and provide insights and resources like links to learn more or address the issues. " +
	"Generate a detailed report to include findings, actions and recommendations"

type Config struct {
	Kibana KibanaConfig `toml:"kibana"`
	Checks ChecksConfig `toml:"checks"`
	Notify NotifyConfig `toml:"notify"`
	Files  FilesConfig  `toml:"files"`
	AI     AIConfig     `toml:"ai"`
	Admin  AdminConfig  `toml:"admin"`
	Log    LogConfig    `toml:"log"`

	// Once runs a single iteration and exits. Flag only.
	Once bool `toml:"-"`
}

type KibanaConfig struct {
	URL            string   `toml:"url"`
	APIKey         string   `toml:"api_key"`
	HostRuleIDs    []string `toml:"host_rule_ids"`
	ServiceRuleIDs []string `toml:"service_rule_ids"`
	HitsSize       int      `toml:"hits_size"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

type ChecksConfig struct {
	SleepSeconds         int      `toml:"sleep_time"`
	Categories           []string `toml:"categories"`
	CPUThreshold         float64  `toml:"cpu_threshold"`
	LatencyThreshold     float64  `toml:"latency_threshold"`
	HostDownThreshold    int      `toml:"host_down_threshold"`
	ServiceDownThreshold int      `toml:"service_down_threshold"`
	NotifyLimit          int      `toml:"notify_limit"`
}

type NotifyConfig struct {
	SlackToken       string   `toml:"slack_token"`
	SlackChannel     string   `toml:"slack_channel"`
	WebhookURL       string   `toml:"webhook_url"`
	TelegramBotToken string   `toml:"telegram_bot_token"`
	TelegramChatID   string   `toml:"telegram_chat_id"`
	SMTPServer       string   `toml:"smtp_server"`
	SMTPPort         int      `toml:"smtp_port"`
	SMTPUser         string   `toml:"smtp_user"`
	SMTPPassword     string   `toml:"smtp_password"`
	EmailReceivers   []string `toml:"email_receivers"`
}

type FilesConfig struct {
	AppLogFile           string `toml:"app_log_file"`
	UserLogFile          string `toml:"user_log_file"`
	LastRunFile          string `toml:"last_run_file"`
	ReportDir            string `toml:"report_dir"`
	ReportRetentionHours int    `toml:"report_retention_hours"`
}

type AIConfig struct {
	RunSchedules   []string `toml:"run_schedules"`
	Prompt         string   `toml:"prompt"`
	Context        string   `toml:"context"`
	Temperature    float64  `toml:"temperature"`
	MaxPromptBytes int64    `toml:"max_prompt_bytes"`
	GeminiKey      string   `toml:"google_api_key"`
	GeminiModel    string   `toml:"model"`
	OpenAIKey      string   `toml:"gpt_api_key"`
	OpenAIModel    string   `toml:"gpt_model_name"`
	DeepSeekKey    string   `toml:"deepseek_api_key"`
	DeepSeekURL    string   `toml:"deepseek_api_url"`
	DeepSeekModel  string   `toml:"deepseek_api_model"`
}

type AdminConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level   string `toml:"level"`
	Verbose bool   `toml:"verbose"`
}

func Default() Config {
	return Config{
		Kibana: KibanaConfig{HitsSize: 100, TimeoutSeconds: 30},
		Checks: ChecksConfig{
			SleepSeconds:         60,
			CPUThreshold:         99,
			LatencyThreshold:     1000,
			HostDownThreshold:    1,
			ServiceDownThreshold: 1,
			NotifyLimit:          3,
		},
		Notify: NotifyConfig{SMTPPort: 587},
		Files: FilesConfig{
			AppLogFile:           "anomaly.log",
			UserLogFile:          "user_activity.log",
			LastRunFile:          "last_run.json",
			ReportDir:            "reports",
			ReportRetentionHours: 14 * 24,
		},
		AI: AIConfig{
			RunSchedules:   []string{"00:00", "12:00"},
			Prompt:         defaultPrompt,
			Temperature:    0.7,
			MaxPromptBytes: 200_000,
			GeminiModel:    "gemini-1.5-flash",
			OpenAIModel:    "gpt-3.5-turbo",
			DeepSeekURL:    "https://api.deepseek.com/v1",
			DeepSeekModel:  "deepseek-chat",
		},
		Log: LogConfig{Level: "info", Verbose: true},
	}
}

// LoadResult carries the config plus non-fatal findings such as unknown
// keys in the config file.
type LoadResult struct {
	Config   Config
	Warnings []string
}

// Load layers defaults, the optional TOML file (-config or KIBALERT_CONFIG),
// the environment and finally explicitly set flags, then validates.
func Load(args []string) (*LoadResult, error) {
	fl, err := parseFlags(args)
	if err != nil {
		return nil, err
	}
	res := &LoadResult{Config: Default()}

	path := getenv("KIBALERT_CONFIG", "")
	if fl.set["config"] {
		path = fl.config
	}
	if path != "" {
		warnings, err := loadFile(path, &res.Config)
		if err != nil {
			return nil, err
		}
		res.Warnings = warnings
	}
	applyEnv(&res.Config)
	fl.apply(&res.Config)

	if err := res.Config.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func loadFile(path string, cfg *Config) ([]string, error) {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{fmt.Sprintf("config file %s not found, using defaults", path)}, nil
		}
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	var warnings []string
	for _, k := range md.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("unknown config key: %q", k.String()))
	}
	return warnings, nil
}

func applyEnv(c *Config) {
	c.Kibana.URL = getenv("KIBANA_URL", c.Kibana.URL)
	c.Kibana.APIKey = getenv("KIBANA_API_KEY", c.Kibana.APIKey)
	c.Kibana.HostRuleIDs = getenvList("HOSTS_RULE_IDS", c.Kibana.HostRuleIDs)
	c.Kibana.ServiceRuleIDs = getenvList("SERVICE_RULE_IDS", c.Kibana.ServiceRuleIDs)
	c.Kibana.HitsSize = getenvInt("HITS_SIZE", c.Kibana.HitsSize)
	c.Kibana.TimeoutSeconds = getenvInt("HTTP_TIMEOUT", c.Kibana.TimeoutSeconds)

	c.Checks.SleepSeconds = getenvInt("SLEEP_TIME", c.Checks.SleepSeconds)
	c.Checks.Categories = getenvList("CHECKS", c.Checks.Categories)
	c.Checks.CPUThreshold = getenvFloat("CPU_THRESHOLD", c.Checks.CPUThreshold)
	c.Checks.LatencyThreshold = getenvFloat("LATENCY_THRESHOLD", c.Checks.LatencyThreshold)
	c.Checks.HostDownThreshold = getenvInt("HOST_DOWN_THRESHOLD", c.Checks.HostDownThreshold)
	c.Checks.ServiceDownThreshold = getenvInt("SERVICE_DOWN_THRESHOLD", c.Checks.ServiceDownThreshold)
	c.Checks.NotifyLimit = getenvInt("NOTIFY_LIMIT", c.Checks.NotifyLimit)

	c.Notify.SlackToken = getenv("SLACK_TOKEN", c.Notify.SlackToken)
	c.Notify.SlackChannel = getenv("SLACK_CHANNEL", c.Notify.SlackChannel)
	c.Notify.WebhookURL = getenv("SLACK_WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.TelegramBotToken = getenv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramBotToken)
	c.Notify.TelegramChatID = getenv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)
	c.Notify.SMTPServer = getenv("SMTP_SERVER", c.Notify.SMTPServer)
	c.Notify.SMTPPort = getenvInt("SMTP_PORT", c.Notify.SMTPPort)
	c.Notify.SMTPUser = getenv("SMTP_USER", c.Notify.SMTPUser)
	c.Notify.SMTPPassword = getenv("SMTP_PASSWORD", c.Notify.SMTPPassword)
	c.Notify.EmailReceivers = getenvList("EMAIL_RECEIVERS", c.Notify.EmailReceivers)

	c.Files.AppLogFile = getenv("APP_LOG_FILE", c.Files.AppLogFile)
	c.Files.UserLogFile = getenv("USER_LOG_FILE", c.Files.UserLogFile)
	c.Files.LastRunFile = getenv("LAST_RUN_FILE", c.Files.LastRunFile)
	c.Files.ReportDir = getenv("REPORT_DIR", c.Files.ReportDir)
	c.Files.ReportRetentionHours = getenvInt("REPORT_RETENTION_HOURS", c.Files.ReportRetentionHours)

	c.AI.RunSchedules = getenvList("AI_RUN_SCHEDULES", c.AI.RunSchedules)
	c.AI.Prompt = getenv("AI_PROMPT", c.AI.Prompt)
	c.AI.Context = getenv("AI_CONTEXT", c.AI.Context)
	c.AI.Temperature = getenvFloat("AI_TEMPERATURE", c.AI.Temperature)
	c.AI.MaxPromptBytes = int64(getenvInt("AI_MAX_PROMPT_BYTES", int(c.AI.MaxPromptBytes)))
	c.AI.GeminiKey = getenv("GOOGLE_API_KEY", c.AI.GeminiKey)
	c.AI.GeminiModel = getenv("AI_MODEL", c.AI.GeminiModel)
	c.AI.OpenAIKey = getenv("GPT_API_KEY", c.AI.OpenAIKey)
	c.AI.OpenAIModel = getenv("GPT_MODEL_NAME", c.AI.OpenAIModel)
	c.AI.DeepSeekKey = getenv("DEEPSEEK_API_KEY", c.AI.DeepSeekKey)
	c.AI.DeepSeekURL = getenv("DEEPSEEK_API_URL", c.AI.DeepSeekURL)
	c.AI.DeepSeekModel = getenv("DEEPSEEK_API_MODEL", c.AI.DeepSeekModel)

	c.Admin.Addr = getenv("ADMIN_ADDR", c.Admin.Addr)
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)
	c.Log.Verbose = getenvBool("VERBOSE", c.Log.Verbose)
}

type flags struct {
	set map[string]bool

	config, url, ruleIDs, serviceIDs, mail, slackChannel, slackToken string
	appLog, userLog, webhook, smtpServer, smtpUser, smtpPassword    string
	adminAddr, logLevel                                             string
	sleep, latency, cpu, notifyLimit, smtpPort, hitsSize            int
	verbose, once                                                   bool
}

// parseFlags mirrors the historical CLI names. Only flags present on the
// command line override earlier layers.
func parseFlags(args []string) (*flags, error) {
	f := &flags{set: map[string]bool{}}
	fset := flag.NewFlagSet("kibalert", flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	fset.StringVar(&f.config, "config", "", "path to a TOML config file")
	fset.StringVar(&f.url, "url", "", "Elastic/Kibana base URL")
	fset.StringVar(&f.ruleIDs, "id", "", "comma-separated host alert rule ids")
	fset.StringVar(&f.serviceIDs, "service", "", "comma-separated service alert rule ids")
	fset.IntVar(&f.sleep, "time", 0, "seconds to sleep between iterations")
	fset.IntVar(&f.latency, "latency", 0, "latency threshold in ms")
	fset.IntVar(&f.cpu, "cpu", 0, "CPU usage threshold in %")
	fset.IntVar(&f.notifyLimit, "notifylimit", 0, "brief notifications per batch")
	fset.StringVar(&f.mail, "mail", "", "comma-separated email receivers")
	fset.StringVar(&f.slackChannel, "notifyslack", "", "Slack channel")
	fset.StringVar(&f.slackToken, "slacktoken", "", "Slack bot token")
	fset.StringVar(&f.appLog, "file", "", "application log file")
	fset.StringVar(&f.userLog, "userlog", "", "rolling alert log file")
	fset.StringVar(&f.webhook, "webhook", "", "Slack-compatible webhook URL")
	fset.StringVar(&f.smtpServer, "smtp_server", "", "SMTP server address")
	fset.IntVar(&f.smtpPort, "smtp_port", 0, "SMTP port")
	fset.StringVar(&f.smtpUser, "smtp_user", "", "SMTP username")
	fset.StringVar(&f.smtpPassword, "smtp_password", "", "SMTP password")
	fset.IntVar(&f.hitsSize, "hits_size", 0, "hits per query")
	fset.StringVar(&f.adminAddr, "admin", "", "admin HTTP listen address, empty disables")
	fset.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fset.BoolVar(&f.verbose, "verbose", false, "log to stdout")
	fset.BoolVar(&f.once, "once", false, "run one iteration and exit")
	if err := fset.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	fset.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

func (f *flags) apply(c *Config) {
	for name := range f.set {
		switch name {
		case "url":
			c.Kibana.URL = f.url
		case "id":
			c.Kibana.HostRuleIDs = ParseList(f.ruleIDs)
		case "service":
			c.Kibana.ServiceRuleIDs = ParseList(f.serviceIDs)
		case "time":
			c.Checks.SleepSeconds = f.sleep
		case "latency":
			c.Checks.LatencyThreshold = float64(f.latency)
		case "cpu":
			c.Checks.CPUThreshold = float64(f.cpu)
		case "notifylimit":
			c.Checks.NotifyLimit = f.notifyLimit
		case "mail":
			c.Notify.EmailReceivers = ParseList(f.mail)
		case "notifyslack":
			c.Notify.SlackChannel = f.slackChannel
		case "slacktoken":
			c.Notify.SlackToken = f.slackToken
		case "file":
			c.Files.AppLogFile = f.appLog
		case "userlog":
			c.Files.UserLogFile = f.userLog
		case "webhook":
			c.Notify.WebhookURL = f.webhook
		case "smtp_server":
			c.Notify.SMTPServer = f.smtpServer
		case "smtp_port":
			c.Notify.SMTPPort = f.smtpPort
		case "smtp_user":
			c.Notify.SMTPUser = f.smtpUser
		case "smtp_password":
			c.Notify.SMTPPassword = f.smtpPassword
		case "hits_size":
			c.Kibana.HitsSize = f.hitsSize
		case "admin":
			c.Admin.Addr = f.adminAddr
		case "log-level":
			c.Log.Level = f.logLevel
		case "verbose":
			c.Log.Verbose = f.verbose
		case "once":
			c.Once = f.once
		}
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Kibana.URL) == "" {
		errs = append(errs, errors.New("KIBANA_URL is required"))
	}
	if strings.TrimSpace(c.Kibana.APIKey) == "" {
		errs = append(errs, errors.New("KIBANA_API_KEY is required"))
	}
	if c.Checks.SleepSeconds <= 0 {
		errs = append(errs, fmt.Errorf("SLEEP_TIME must be positive, got %d", c.Checks.SleepSeconds))
	}
	if c.Checks.NotifyLimit < 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_LIMIT must not be negative, got %d", c.Checks.NotifyLimit))
	}
	if c.Kibana.HitsSize <= 0 {
		errs = append(errs, fmt.Errorf("HITS_SIZE must be positive, got %d", c.Kibana.HitsSize))
	}
	for _, w := range c.AI.RunSchedules {
		if _, err := schedule.ParseWindow(w); err != nil {
			errs = append(errs, fmt.Errorf("AI_RUN_SCHEDULES: %w", err))
		}
	}
	if _, err := c.CategoryList(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.Checks.SleepSeconds) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Kibana.TimeoutSeconds) * time.Second
}

func (c Config) ReportRetention() time.Duration {
	return time.Duration(c.Files.ReportRetentionHours) * time.Hour
}

func (c Config) Thresholds() models.Thresholds {
	return models.Thresholds{
		CPUPct:           c.Checks.CPUThreshold,
		LatencyMs:        c.Checks.LatencyThreshold,
		HostDownCount:    c.Checks.HostDownThreshold,
		ServiceDownCount: c.Checks.ServiceDownThreshold,
	}
}

// CategoryList resolves the enabled checks, keeping the canonical check
// order. An empty list enables every category.
func (c Config) CategoryList() ([]models.Category, error) {
	if len(c.Checks.Categories) == 0 {
		return models.Categories, nil
	}
	want := map[models.Category]bool{}
	for _, name := range c.Checks.Categories {
		cat := models.Category(strings.ToLower(strings.TrimSpace(name)))
		known := false
		for _, k := range models.Categories {
			if k == cat {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("CHECKS: unknown category %q", name)
		}
		want[cat] = true
	}
	out := make([]models.Category, 0, len(want))
	for _, k := range models.Categories {
		if want[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// ParseList splits a comma-separated value and drops blank items.
func ParseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return d
	}
	return n
}

func getenvFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return d
	}
	return f
}

func getenvList(k string, d []string) []string {
	v, ok := os.LookupEnv(k)
	if !ok || strings.TrimSpace(v) == "" {
		return d
	}
	return ParseList(v)
}

func getenvBool(k string, d bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return d
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	return d
}
