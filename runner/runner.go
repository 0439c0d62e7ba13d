package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	RunModeList = iota + 1
	RunModeSubmitVis
	RunModeSubmitConversion
	RunModeSubmitMetadata
	RunModeSubmitVoltage
	RunModeWait
	RunModeDownload
	RunModeCancel
)

const Version = "1.0.0"

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
	ErrNoIdentifiers  = errors.New("no job IDs or obs IDs given")
)

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

type Config struct {
	RunMode int

	// Identifiers are the positional arguments: job IDs, obs IDs, or
	// paths to files containing them.
	Identifiers []string

	Server string
	Debug  bool
	JSON   bool

	// list filters
	Types  []string
	States []string

	// submission
	Delivery         string
	DeliveryFormat   string
	ExpiryDays       int
	AllowResubmit    bool
	Wait             bool
	ConversionParams map[string]string
	VoltageOffset    int
	VoltageDuration  int

	// wait engine
	PollInterval time.Duration

	// download
	DownloadDir  string
	Concurrency  int
	KeepArchive  bool
	NoResume     bool
	SkipHash     bool
	StrictResume bool
	BufferMiB    int
	DryRun       bool
}

const usageText = `usage: squid <command> [flags] [job IDs | obs IDs | files of IDs]

commands:
  list          list your jobs and their states
  submit-vis    submit visibility download jobs
  submit-conv   submit conversion jobs
  submit-meta   submit metadata download jobs
  submit-volt   submit voltage download jobs
  wait          wait until the given jobs reach a terminal state
  download      download ready jobs
  cancel        cancel the given jobs

run "squid <command> -h" for the flags of each command
`

// ParseConfig parses a subcommand and its flags from args (os.Args[1:])
// into an immutable Config.
func ParseConfig(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no command given\n\n%s", ErrInvalidRunMode, usageText)
	}

	cfg := Config{
		Server:       os.Getenv("MWA_ASVO_HOST"),
		Delivery:     os.Getenv("GIANT_SQUID_DELIVERY"),
		BufferMiB:    envInt("GIANT_SQUID_BUF_SIZE", 100),
		PollInterval: time.Minute,
		ExpiryDays:   7,
	}

	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.StringVar(&cfg.Server, "server", cfg.Server, "service base URL [default: the MWA ASVO production server]")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")

	var typesCSV, statesCSV, paramsCSV string

	switch cmd {
	case "list":
		cfg.RunMode = RunModeList

		fs.BoolVar(&cfg.JSON, "json", false, "print the listing as JSON instead of a table")
		fs.StringVar(&typesCSV, "types", "", "comma separated job types to show (e.g. download_visibilities,conversion)")
		fs.StringVar(&statesCSV, "states", "", "comma separated job states to show (e.g. queued,ready)")
	case "submit-vis":
		cfg.RunMode = RunModeSubmitVis

		submitFlags(fs, &cfg)
	case "submit-conv":
		cfg.RunMode = RunModeSubmitConversion

		submitFlags(fs, &cfg)
		fs.StringVar(&paramsCSV, "params", "", "conversion parameters as key=value pairs separated by commas; overrides the defaults")
	case "submit-meta":
		cfg.RunMode = RunModeSubmitMetadata

		submitFlags(fs, &cfg)
	case "submit-volt":
		cfg.RunMode = RunModeSubmitVoltage

		submitFlags(fs, &cfg)
		fs.IntVar(&cfg.VoltageOffset, "offset", 0, "offset in seconds from the start of the observation")
		fs.IntVar(&cfg.VoltageDuration, "duration", 0, "duration in seconds of voltage data to stage")
	case "wait":
		cfg.RunMode = RunModeWait

		fs.BoolVar(&cfg.JSON, "json", false, "print the final states as JSON instead of a table")
		fs.DurationVar(&cfg.PollInterval, "interval", time.Minute, "how often to poll the service")
	case "download":
		cfg.RunMode = RunModeDownload

		fs.StringVar(&cfg.DownloadDir, "dir", ".", "directory to download into")
		fs.IntVar(&cfg.Concurrency, "c", 1, "number of simultaneous downloads; 0 uses all CPU cores")
		fs.BoolVar(&cfg.KeepArchive, "keep-archive", false, "keep the archive file instead of extracting it")
		fs.BoolVar(&cfg.NoResume, "no-resume", false, "never resume a partial archive; fail if one exists")
		fs.BoolVar(&cfg.SkipHash, "skip-hash", false, "skip hash verification of downloads")
		fs.BoolVar(&cfg.StrictResume, "strict-resume", false, "fail instead of redownloading when an existing file's hash does not match")
		fs.IntVar(&cfg.BufferMiB, "buf", cfg.BufferMiB, "write buffer size in MiB")
		fs.BoolVar(&cfg.DryRun, "dry-run", false, "show what would be downloaded without transferring anything")
	case "cancel":
		cfg.RunMode = RunModeCancel
	case "help", "-h", "--help":
		return nil, errors.New(usageText)
	case "version", "-V", "--version":
		return nil, fmt.Errorf("squid %s", Version)
	default:
		return nil, fmt.Errorf("%w: unknown command %q\n\n%s", ErrInvalidRunMode, cmd, usageText)
	}

	if err := fs.Parse(rest); err != nil {
		return nil, err
	}

	cfg.Identifiers = fs.Args()

	if typesCSV != "" {
		cfg.Types = splitCSV(typesCSV)
	}

	if statesCSV != "" {
		cfg.States = splitCSV(statesCSV)
	}

	if paramsCSV != "" {
		params, err := parseParams(paramsCSV)
		if err != nil {
			return nil, err
		}

		cfg.ConversionParams = params
	}

	if cfg.Concurrency < 0 {
		return nil, errors.New("concurrency must not be negative")
	}

	if cfg.BufferMiB < 1 {
		return nil, errors.New("buffer size must be at least 1 MiB")
	}

	if cfg.RunMode == RunModeSubmitVoltage && cfg.VoltageDuration < 1 {
		return nil, errors.New("voltage jobs need a -duration of at least 1 second")
	}

	if cfg.RunMode != RunModeList && len(cfg.Identifiers) == 0 {
		return nil, ErrNoIdentifiers
	}

	return &cfg, nil
}

func submitFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Delivery, "delivery", cfg.Delivery, "delivery method: acacia, scratch, astro or dug [default: acacia, or $GIANT_SQUID_DELIVERY]")
	fs.StringVar(&cfg.DeliveryFormat, "delivery-format", "", "delivery format; only 'tar' is understood by the service")
	fs.IntVar(&cfg.ExpiryDays, "expiry-days", cfg.ExpiryDays, "days before the staged data expires")
	fs.BoolVar(&cfg.AllowResubmit, "allow-resubmit", false, "submit even if an identical job already exists")
	fs.BoolVar(&cfg.Wait, "wait", false, "wait for the submitted jobs to reach a terminal state")
	fs.DurationVar(&cfg.PollInterval, "interval", time.Minute, "how often to poll while waiting")
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

func parseParams(s string) (map[string]string, error) {
	out := make(map[string]string)

	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("bad conversion parameter %q: want key=value", pair)
		}

		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	return out, nil
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}

	return n
}

// NewLogger builds the process-wide logger. Debug mode switches to the
// human-oriented development encoder.
func NewLogger(debug bool) *zap.Logger {
	if debug {
		log, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}

		return log
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = nil
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true

	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}

	return log
}

func wrapText(text string, width int) []string {
	var lines []string

	currentLine := ""
	currentWidth := 0

	for _, r := range text {
		runeWidth := runewidth.RuneWidth(r)
		if currentWidth+runeWidth > width {
			lines = append(lines, currentLine)
			currentLine = string(r)
			currentWidth = runeWidth
		} else {
			currentLine += string(r)
			currentWidth += runeWidth
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}

func banner(messages []string, width int) string {
	if width <= 0 {
		var err error

		width, _, err = term.GetSize(0)
		if err != nil {
			width = 80
		}
	}

	if width < 20 {
		width = 20
	}

	contentWidth := width - 4

	var wrappedLines []string
	for _, message := range messages {
		wrappedLines = append(wrappedLines, wrapText(message, contentWidth)...)
	}

	var builder strings.Builder

	builder.WriteString("╔" + strings.Repeat("═", width-2) + "╗\n")

	for _, line := range wrappedLines {
		lineWidth := runewidth.StringWidth(line)
		paddingRight := contentWidth - lineWidth

		if paddingRight < 0 {
			paddingRight = 0
		}

		builder.WriteString(fmt.Sprintf("║ %s%s ║\n", line, strings.Repeat(" ", paddingRight)))
	}

	builder.WriteString("╚" + strings.Repeat("═", width-2) + "╝\n")

	return builder.String()
}

func Banner() {
	message1 := "🦑 squid " + Version + ": an MWA ASVO client"
	message2 := "🔭 Stage, convert and download Murchison Widefield Array data: https://asvo.mwatelescope.org"

	fmt.Fprintln(os.Stderr, banner([]string{message1, message2}, 0))
}
