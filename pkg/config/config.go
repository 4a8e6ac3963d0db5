package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/exitcode"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override file settings,
// e.g. REPORTDEPLOY_PASSWORD or REPORTDEPLOY_DATASOURCE_PASSWORD.
const EnvPrefix = "REPORTDEPLOY"

// Endpoint is the SOAP endpoint appended to the configured server URL.
const Endpoint = "ReportService2010.asmx"

// Config holds everything a publish run needs. It is immutable once loaded.
type Config struct {
	URL        string           `mapstructure:"url"`
	UserName   string           `mapstructure:"username"`
	Password   string           `mapstructure:"password"`
	RootFolder string           `mapstructure:"rootFolder"`
	DataSource DataSourceConfig `mapstructure:"dataSource"`
	Model      CategoryConfig   `mapstructure:"model"`
	Report     CategoryConfig   `mapstructure:"report"`
	Transport  TransportConfig  `mapstructure:"transport"`
}

// DataSourceConfig holds the connections folder and the parameters applied
// to every published connection.
type DataSourceConfig struct {
	Path                string `mapstructure:"path"`
	ConnectionString    string `mapstructure:"connectionString"`
	Username            string `mapstructure:"username"`
	Password            string `mapstructure:"password"`
	CredentialRetrieval string `mapstructure:"credentialRetrieval"`
	WindowsCredentials  bool   `mapstructure:"windowsCredentials"`
}

// CategoryConfig holds the subfolder of a category below the root folder.
type CategoryConfig struct {
	Path string `mapstructure:"path"`
}

// TransportConfig tunes the SOAP client.
type TransportConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rateLimit"` // requests per second, 0 disables pacing
	RateBurst int           `mapstructure:"rateBurst"`
	Retry     RetryConfig   `mapstructure:"retry"`
}

// RetryConfig bounds retries of transient transport failures. MaxAttempts of
// 1 means fail fast.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	InitialInterval time.Duration `mapstructure:"initialInterval"`
	MaxInterval     time.Duration `mapstructure:"maxInterval"`
}

var defaultConfig = Config{
	DataSource: DataSourceConfig{
		Path:                "Data Sources",
		CredentialRetrieval: string(catalog.CredentialsStore),
	},
	Model:  CategoryConfig{Path: "Models"},
	Report: CategoryConfig{Path: "Reports"},
	Transport: TransportConfig{
		Timeout:   100 * time.Second,
		RateLimit: 0,
		RateBurst: 1,
		Retry: RetryConfig{
			MaxAttempts:     1,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
		},
	},
}

// Error reports a missing or malformed setting. It is raised before any
// remote call is made.
type Error struct {
	File     string
	Problems []string
}

func (e *Error) Error() string {
	where := "configuration"
	if e.File != "" {
		where = fmt.Sprintf("configuration %s", e.File)
	}
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%s: %s", where, e.Problems[0])
	}
	return fmt.Sprintf("%s:\n  - %s", where, strings.Join(e.Problems, "\n  - "))
}

// ExitCode maps configuration errors to exitcode.ConfigError.
func (e *Error) ExitCode() int {
	return exitcode.ConfigError
}

// Load reads the configuration file at path, validates its shape against the
// embedded schema, applies defaults and REPORTDEPLOY_* environment overrides
// and returns the checked record.
func Load(path string) (*Config, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, &Error{File: path, Problems: []string{fmt.Sprintf("cannot read file: %v", err)}}
	}
	if err := ValidateSettings(raw.AllSettings()); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.File = path
		}
		return nil, err
	}

	v := newViper()
	if err := v.MergeConfigMap(raw.AllSettings()); err != nil {
		return nil, &Error{File: path, Problems: []string{fmt.Sprintf("cannot merge file: %v", err)}}
	}
	return decode(v, path)
}

func readFile(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if !slices.Contains(viper.SupportedExts, ext) {
		// Deployment files are JSON regardless of their extension.
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

func decode(v *viper.Viper, file string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{File: file, Problems: []string{fmt.Sprintf("error unmarshaling config: %v", err)}}
	}
	if err := cfg.Validate(); err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			ce.File = file
		}
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("url", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("rootfolder", "")
	v.SetDefault("datasource.path", defaultConfig.DataSource.Path)
	v.SetDefault("datasource.connectionstring", "")
	v.SetDefault("datasource.username", "")
	v.SetDefault("datasource.password", "")
	v.SetDefault("datasource.credentialretrieval", defaultConfig.DataSource.CredentialRetrieval)
	v.SetDefault("datasource.windowscredentials", false)
	v.SetDefault("model.path", defaultConfig.Model.Path)
	v.SetDefault("report.path", defaultConfig.Report.Path)

	// Transport defaults
	v.SetDefault("transport.timeout", defaultConfig.Transport.Timeout.String())
	v.SetDefault("transport.ratelimit", defaultConfig.Transport.RateLimit)
	v.SetDefault("transport.rateburst", defaultConfig.Transport.RateBurst)
	v.SetDefault("transport.retry.maxattempts", defaultConfig.Transport.Retry.MaxAttempts)
	v.SetDefault("transport.retry.initialinterval", defaultConfig.Transport.Retry.InitialInterval.String())
	v.SetDefault("transport.retry.maxinterval", defaultConfig.Transport.Retry.MaxInterval.String())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Validate checks the semantic rules the schema cannot express.
func (c *Config) Validate() error {
	var problems []string

	if u, err := url.Parse(c.URL); err != nil || u.Host == "" {
		problems = append(problems, fmt.Sprintf("url %q is not an absolute URL", c.URL))
	}
	if strings.TrimSpace(c.RootFolder) == "" {
		problems = append(problems, "rootFolder is required")
	}
	if strings.TrimSpace(c.DataSource.ConnectionString) == "" {
		problems = append(problems, "dataSource.connectionString is required")
	}
	for name, p := range map[string]string{
		"dataSource.path": c.DataSource.Path,
		"model.path":      c.Model.Path,
		"report.path":     c.Report.Path,
	} {
		if len(catalog.Segments(p)) == 0 {
			problems = append(problems, fmt.Sprintf("%s must name a folder", name))
		}
	}
	if _, ok := catalog.ParseCredentialRetrieval(c.DataSource.CredentialRetrieval); !ok {
		problems = append(problems, fmt.Sprintf("dataSource.credentialRetrieval %q must be one of Store, Prompt, Integrated, None", c.DataSource.CredentialRetrieval))
	}
	if c.Transport.Timeout <= 0 {
		problems = append(problems, "transport.timeout must be positive")
	}
	if c.Transport.Retry.MaxAttempts < 1 {
		problems = append(problems, "transport.retry.maxAttempts must be at least 1")
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return &Error{Problems: problems}
	}
	return nil
}

// ServiceURL returns the SOAP endpoint derived from URL.
func (c *Config) ServiceURL() string {
	base := strings.TrimRight(c.URL, "/")
	if strings.HasSuffix(strings.ToLower(base), strings.ToLower(Endpoint)) {
		return base
	}
	return base + "/" + Endpoint
}

// Root returns the normalized root catalog folder.
func (c *Config) Root() string {
	return catalog.Normalize(c.RootFolder)
}

// ConnectionsRoot returns the folder shared connections are published to.
func (c *Config) ConnectionsRoot() string {
	return catalog.Join(c.RootFolder, c.DataSource.Path)
}

// ModelsRoot returns the folder semantic models are published to.
func (c *Config) ModelsRoot() string {
	return catalog.Join(c.RootFolder, c.Model.Path)
}

// ReportsRoot returns the folder reports are published to.
func (c *Config) ReportsRoot() string {
	return catalog.Join(c.RootFolder, c.Report.Path)
}

// ConnectionDefinition builds the definition applied to every published
// connection. The provider is always SQL and the connection is enabled.
func (c *Config) ConnectionDefinition() catalog.ConnectionDefinition {
	mode, ok := catalog.ParseCredentialRetrieval(c.DataSource.CredentialRetrieval)
	if !ok {
		mode = catalog.CredentialsStore
	}
	return catalog.ConnectionDefinition{
		Extension:           "SQL",
		ConnectString:       c.DataSource.ConnectionString,
		CredentialRetrieval: mode,
		WindowsCredentials:  c.DataSource.WindowsCredentials,
		UserName:            c.DataSource.Username,
		Password:            c.DataSource.Password,
		Enabled:             true,
	}
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "***"
	}
	if c.DataSource.Password != "" {
		c.DataSource.Password = "***"
	}
	return c
}
