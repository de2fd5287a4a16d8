// Package config loads the flow configuration from the environment.
//
// Every key is read from an AUTHFLOW_ prefixed variable:
//
//   - AUTHFLOW_LOG_LEVEL: debug, info, warn or error. Default: info
//   - AUTHFLOW_HTTP_ADDR: listen address of the example host. Default: :8080
//   - AUTHFLOW_ROOT_PATH, AUTHFLOW_SIGN_IN_PATH, AUTHFLOW_SIGN_UP_PATH: host
//     routes. Defaults: /, /sign-in, /sign-up
//   - AUTHFLOW_POLL_INTERVAL, AUTHFLOW_POLL_MAX_ATTEMPTS: readiness wait.
//     Defaults: 50ms, 100
//   - AUTHFLOW_RETRY_MAX_ATTEMPTS, AUTHFLOW_RETRY_INITIAL_INTERVAL: retry of
//     transport failures. Defaults: 1 (no retry), 200ms
//   - AUTHFLOW_OAUTH_PROVIDERS: comma separated provider names
//
// Each provider listed in AUTHFLOW_OAUTH_PROVIDERS is read from its own keys:
//
//	AUTHFLOW_OAUTH_PROVIDER_GOOGLE_ISSUER=https://accounts.google.com
//	AUTHFLOW_OAUTH_PROVIDER_GOOGLE_CLIENT_ID=your-client-id
//	AUTHFLOW_OAUTH_PROVIDER_GOOGLE_CLIENT_SECRET=your-secret
//	AUTHFLOW_OAUTH_PROVIDER_GOOGLE_REDIRECT_URL=https://app.example.com/sign-in/sso-callback
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/im-adarsh/go-authflow/flow"
	"github.com/im-adarsh/go-authflow/identity/oauth"
	"github.com/im-adarsh/go-authflow/tasks"
	"github.com/im-adarsh/go-authflow/workflow"
)

const envPrefix = "AUTHFLOW"

// Config is the process configuration, read from AUTHFLOW_* variables.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	RootPath   string `mapstructure:"ROOT_PATH"`
	SignInPath string `mapstructure:"SIGN_IN_PATH"`
	SignUpPath string `mapstructure:"SIGN_UP_PATH"`

	PollInterval    time.Duration `mapstructure:"POLL_INTERVAL"`
	PollMaxAttempts int           `mapstructure:"POLL_MAX_ATTEMPTS"`

	RetryMaxAttempts     int           `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryInitialInterval time.Duration `mapstructure:"RETRY_INITIAL_INTERVAL"`

	OAuthProviders []string `mapstructure:"OAUTH_PROVIDERS"`

	providers []oauth.Provider
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads the configuration through v, which may already carry a
// config file or overrides.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("ROOT_PATH", "/")
	v.SetDefault("SIGN_IN_PATH", "/sign-in")
	v.SetDefault("SIGN_UP_PATH", "/sign-up")
	v.SetDefault("POLL_INTERVAL", 50*time.Millisecond)
	v.SetDefault("POLL_MAX_ATTEMPTS", 100)
	v.SetDefault("RETRY_MAX_ATTEMPTS", 1)
	v.SetDefault("RETRY_INITIAL_INTERVAL", 200*time.Millisecond)
	v.SetDefault("OAUTH_PROVIDERS", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	for _, name := range cfg.OAuthProviders {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, err := readProvider(v, name)
		if err != nil {
			return nil, err
		}
		cfg.providers = append(cfg.providers, p)
	}
	if cfg.PollInterval <= 0 || cfg.PollMaxAttempts <= 0 {
		return nil, fmt.Errorf("config: poll interval and attempts must be positive")
	}
	return &cfg, nil
}

func readProvider(v *viper.Viper, name string) (oauth.Provider, error) {
	key := func(k string) string {
		return "OAUTH_PROVIDER." + strings.ToUpper(name) + "." + k
	}
	p := oauth.Provider{
		Name:         strings.ToLower(name),
		DisplayName:  v.GetString(key("DISPLAY_NAME")),
		Issuer:       v.GetString(key("ISSUER")),
		ClientID:     v.GetString(key("CLIENT_ID")),
		ClientSecret: v.GetString(key("CLIENT_SECRET")),
		RedirectURL:  v.GetString(key("REDIRECT_URL")),
		AuthURL:      v.GetString(key("AUTH_URL")),
		TokenURL:     v.GetString(key("TOKEN_URL")),
		UserInfoURL:  v.GetString(key("USERINFO_URL")),
	}
	if scopes := v.GetString(key("SCOPES")); scopes != "" {
		p.Scopes = strings.Split(scopes, ",")
	}
	if p.DisplayName == "" {
		p.DisplayName = name
	}
	if p.ClientID == "" {
		return p, fmt.Errorf("config: oauth provider %q has no client id", name)
	}
	if p.Issuer == "" && (p.AuthURL == "" || p.TokenURL == "") {
		return p, fmt.Errorf("config: oauth provider %q needs an issuer or auth and token urls", name)
	}
	return p, nil
}

// Paths derives the flow routes from the configured roots.
func (c *Config) Paths() flow.Paths {
	signIn := strings.TrimSuffix(c.SignInPath, "/")
	signUp := strings.TrimSuffix(c.SignUpPath, "/")
	return flow.Paths{
		Root:              c.RootPath,
		SignIn:            signIn,
		FactorOne:         signIn + "/factor-one",
		FactorTwo:         signIn + "/factor-two",
		SSOCallback:       signIn + "/sso-callback",
		SignUp:            signUp,
		Verify:            signUp + "/verify",
		SignUpSSOCallback: signUp + "/sso-callback",
	}
}

// PollPolicy is the readiness wait used for the client and environment.
func (c *Config) PollPolicy() workflow.PollPolicy {
	return workflow.PollPolicy{Interval: c.PollInterval, MaxAttempts: c.PollMaxAttempts}
}

// RetryPolicy returns nil when transport failures are not retried.
func (c *Config) RetryPolicy() *workflow.RetryPolicy {
	if c.RetryMaxAttempts <= 1 {
		return nil
	}
	return &workflow.RetryPolicy{MaxAttempts: c.RetryMaxAttempts, InitialInterval: c.RetryInitialInterval}
}

// OAuthProviderConfigs returns the providers listed in OAUTH_PROVIDERS.
func (c *Config) OAuthProviderConfigs() []oauth.Provider {
	return append([]oauth.Provider(nil), c.providers...)
}

// TaskOptions configures a tasks.Runner from c.
func (c *Config) TaskOptions(log *zap.Logger) []tasks.Option {
	opts := []tasks.Option{tasks.WithPollPolicy(c.PollPolicy()), tasks.WithLogger(log)}
	if p := c.RetryPolicy(); p != nil {
		opts = append(opts, tasks.WithRetry(*p))
	}
	return opts
}
