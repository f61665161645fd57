package app

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	"github.com/segstitch/segstitch/pkg/logging"
)

const (
	defaultReqIntervalS = 60
)

type ServerConfig struct {
	LogFormat string `json:"logformat"`
	LogLevel  string `json:"loglevel"`
	Port      int    `json:"port"`
	// TimeoutS is the timeout for non-streaming requests (seconds).
	TimeoutS int `json:"timeoutS"`
	// DBPath is the path to the segment store database.
	DBPath string `json:"dbpath"`
	// WorkDir is the parent directory for per-session scratch workspaces.
	WorkDir string `json:"workdir"`
	// MaxRequests limits requests per IP per interval. 0 means no limit.
	MaxRequests int `json:"maxrequests"`
	// ReqLimitIntS is the request limit interval (seconds).
	ReqLimitIntS int `json:"reqlimitintS"`
	// MaxUploadMiB bounds the size of one uploaded video.
	MaxUploadMiB int `json:"maxuploadmib"`
	// SegmentDurS is the target segment duration at upload (seconds).
	SegmentDurS int `json:"segmentdurS"`
	// FFmpeg is the path to the ffmpeg binary. Empty means PATH lookup.
	FFmpeg string `json:"ffmpeg"`
	// FetchWorkers bounds parallel segment fetches per stream session.
	FetchWorkers int    `json:"fetchworkers"`
	Domains      string `json:"domains"  doc:"One or more DNS domains (comma-separated) for automatic TLS certificates"`
	CertPath     string `json:"certpath"`
	KeyPath      string `json:"keypath"`
}

var DefaultConfig = ServerConfig{
	LogFormat:    "text",
	LogLevel:     "INFO",
	Port:         8888,
	TimeoutS:     60,
	DBPath:       "./segstitch.db",
	WorkDir:      os.TempDir(),
	MaxRequests:  0,
	ReqLimitIntS: defaultReqIntervalS,
	MaxUploadMiB: 1024,
	SegmentDurS:  8,
	FFmpeg:       "",
	FetchWorkers: 4,
}

// LoadConfig loads defaults, config file, command line, and finally applies
// environment variables (SEGSTITCH_*).
//
// DBPath and WorkDir are made absolute relative to cwd.
func LoadConfig(args []string, cwd string) (*ServerConfig, error) {
	// First set default values
	k := koanf.New(".")
	defaults := DefaultConfig
	if err := k.Load(structs.Provider(defaults, "json"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	f := pflag.NewFlagSet("segstitch", pflag.ContinueOnError)
	f.Usage = func() {
		parts := strings.Split(args[0], "/")
		name := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, "Run as %s [options]:\n", name)
		f.PrintDefaults()
	}
	// Path to a config file to load into koanf along with some config params.
	cfgFile := f.String("cfg", "", "path to a JSON config file")
	f.Int("port", k.Int("port"), "HTTP port")
	lf := strings.Join(logging.LogFormats, ", ")
	f.String("logformat", k.String("logformat"), fmt.Sprintf("log format [%s]", lf))
	ll := strings.Join(logging.LogLevels, ", ")
	f.String("loglevel", k.String("loglevel"), fmt.Sprintf("log level [%s]", ll))
	f.Int("timeout", k.Int("timeoutS"), "timeout for non-streaming requests (seconds)")
	f.String("dbpath", k.String("dbpath"), "segment store database file")
	f.String("workdir", k.String("workdir"), "parent directory for session workspaces")
	f.Int("maxrequests", k.Int("maxrequests"), "max requests per IP per interval (0 = no limit)")
	f.Int("maxupload", k.Int("maxuploadmib"), "max upload size (MiB)")
	f.Int("segmentdur", k.Int("segmentdurS"), "segment duration at upload (seconds)")
	f.String("ffmpeg", k.String("ffmpeg"), "path to ffmpeg binary (empty = PATH lookup)")
	f.Int("fetchworkers", k.Int("fetchworkers"), "parallel segment fetches per stream session")
	f.String("domains", k.String("domains"), "domains for Let's Encrypt certificates (comma-separated)")
	f.String("certpath", k.String("certpath"), "path to TLS certificate file")
	f.String("keypath", k.String("keypath"), "path to TLS private key file")
	if err := f.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("command line parse: %w", err)
	}

	// Load the config file provided on the command line.
	if *cfgFile != "" {
		cf := file.Provider(*cfgFile)
		if err := k.Load(cf, json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Possibly override config file with command line parameters
	if err := k.Load(posflag.ProviderWithValue(f, ".", k, cliNameToConfigKey), nil); err != nil {
		return nil, fmt.Errorf("parsing cli: %w", err)
	}

	// Overload with environment variables
	if err := k.Load(env.Provider("SEGSTITCH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SEGSTITCH_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	// Make paths absolute in case they are not already
	for _, key := range []string{"dbpath", "workdir"} {
		p := k.String(key)
		if p != "" && !path.IsAbs(p) {
			if err := k.Load(confmap.Provider(map[string]any{
				key: path.Join(cwd, p),
			}, "."), nil); err != nil {
				return nil, fmt.Errorf("making %s absolute: %w", key, err)
			}
		}
	}

	if k.String("domains") != "" {
		if err := k.Load(confmap.Provider(map[string]any{"port": 443}, "."), nil); err != nil {
			return nil, fmt.Errorf("setting HTTPS port: %w", err)
		}
	}

	// Unmarshal into cfg
	var cfg ServerConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// cliNameToConfigKey maps flag names to config keys where they differ.
func cliNameToConfigKey(key string, value string) (string, any) {
	switch key {
	case "timeout":
		return "timeoutS", value
	case "maxupload":
		return "maxuploadmib", value
	case "segmentdur":
		return "segmentdurS", value
	case "cfg":
		return "", nil
	}
	return key, value
}
