package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const Name = "fediglade"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

// AppConfig is the process-wide configuration, loaded once by ReadConf and
// threaded through app/, web/, and the worker pools.
type AppConfig struct {
	Conf struct {
		Host            string
		HttpPort        int    `yaml:"httpPort"`
		SslDomain       string `yaml:"sslDomain"`
		WithAp          bool   `yaml:"withAp"`
		Single          bool   `yaml:"single"`
		Closed          bool   `yaml:"closed"`
		NodeDescription string `yaml:"nodeDescription"`
		WithJournald    bool   `yaml:"withJournald"`
		WithPprof       bool   `yaml:"withPprof"`
		MaxChars        int    `yaml:"maxChars"`
		ShowGlobal      bool   `yaml:"showGlobal"`
		ShowTos         bool   `yaml:"showTos"`

		// InstanceActorName is the local username minted for the
		// instance-wide actor used to sign anonymous fetches (spec.md 6).
		InstanceActorName string `yaml:"instanceActorName"`
		// FetchTimeoutSeconds bounds a single Fetcher round trip.
		FetchTimeoutSeconds int `yaml:"fetchTimeoutSeconds"`
		// DeliveryWorkerCount sizes the Delivery Queue's worker pool.
		DeliveryWorkerCount int `yaml:"deliveryWorkerCount"`
		// DeliveryMaxAttempts caps retries before a job is abandoned.
		DeliveryMaxAttempts int `yaml:"deliveryMaxAttempts"`
		// MaxFetchBytes caps the size of a fetched remote object.
		MaxFetchBytes int64 `yaml:"maxFetchBytes"`
		// InviteCode gates FEP-ef61 portable-actor registration (spec.md S6)
		// when non-empty.
		InviteCode string `yaml:"inviteCode"`
	}
}

// ReadConf loads the config file (local path first, then the user config
// directory, falling back to the embedded default), then applies
// FEDIGLADE_*-prefixed environment overrides.
func ReadConf() (*AppConfig, error) {
	c := &AppConfig{}

	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		log.Printf("config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		if configDir, dirErr := GetConfigDir(); dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				log.Printf("warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("created default config file at %s", userConfigPath)
			}
		}
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnvOverrides(c)
	clampMaxChars(c)

	return c, nil
}

func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("FEDIGLADE_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("FEDIGLADE_HTTPPORT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("error parsing FEDIGLADE_HTTPPORT: %v", err)
		} else {
			c.Conf.HttpPort = n
		}
	}
	if v := os.Getenv("FEDIGLADE_SSLDOMAIN"); v != "" {
		c.Conf.SslDomain = v
	}
	if os.Getenv("FEDIGLADE_WITH_AP") == "true" {
		c.Conf.WithAp = true
	}
	if os.Getenv("FEDIGLADE_SINGLE") == "true" {
		c.Conf.Single = true
	}
	if os.Getenv("FEDIGLADE_CLOSED") == "true" {
		c.Conf.Closed = true
	}
	if v := os.Getenv("FEDIGLADE_NODE_DESCRIPTION"); v != "" {
		c.Conf.NodeDescription = v
	}
	if os.Getenv("FEDIGLADE_WITH_JOURNALD") == "true" {
		c.Conf.WithJournald = true
	}
	if os.Getenv("FEDIGLADE_WITH_PPROF") == "true" {
		c.Conf.WithPprof = true
	}
	if os.Getenv("FEDIGLADE_SHOW_GLOBAL") == "true" {
		c.Conf.ShowGlobal = true
	}
	if os.Getenv("FEDIGLADE_SHOW_TOS") == "true" {
		c.Conf.ShowTos = true
	}
	if v := os.Getenv("FEDIGLADE_INSTANCE_ACTOR_NAME"); v != "" {
		c.Conf.InstanceActorName = v
	}
	if v := os.Getenv("FEDIGLADE_FETCH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("error parsing FEDIGLADE_FETCH_TIMEOUT_SECONDS: %v", err)
		} else {
			c.Conf.FetchTimeoutSeconds = n
		}
	}
	if v := os.Getenv("FEDIGLADE_DELIVERY_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("error parsing FEDIGLADE_DELIVERY_WORKER_COUNT: %v", err)
		} else {
			c.Conf.DeliveryWorkerCount = n
		}
	}
	if v := os.Getenv("FEDIGLADE_DELIVERY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("error parsing FEDIGLADE_DELIVERY_MAX_ATTEMPTS: %v", err)
		} else {
			c.Conf.DeliveryMaxAttempts = n
		}
	}
	if v := os.Getenv("FEDIGLADE_MAX_FETCH_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err != nil {
			log.Printf("error parsing FEDIGLADE_MAX_FETCH_BYTES: %v", err)
		} else {
			c.Conf.MaxFetchBytes = n
		}
	}
	if v := os.Getenv("FEDIGLADE_INVITE_CODE"); v != "" {
		c.Conf.InviteCode = v
	}
	if v := os.Getenv("FEDIGLADE_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			log.Printf("error parsing FEDIGLADE_MAX_CHARS: %v", err)
		} else {
			c.Conf.MaxChars = n
		}
	}
}

// clampMaxChars bounds MaxChars to [1, 300] and defaults to 150 when unset,
// matching the teacher's content-length policy.
func clampMaxChars(c *AppConfig) {
	switch {
	case c.Conf.MaxChars == 0:
		c.Conf.MaxChars = 150
	case c.Conf.MaxChars > 300:
		log.Printf("maxChars value %d exceeds maximum of 300, capping at 300", c.Conf.MaxChars)
		c.Conf.MaxChars = 300
	case c.Conf.MaxChars < 1:
		log.Printf("maxChars value %d is less than minimum of 1, setting to default 150", c.Conf.MaxChars)
		c.Conf.MaxChars = 150
	}
}

// ResolveFilePath looks for name in the current working directory first,
// falling back to the user config directory (creating it if absent), so
// a local checkout and an installed binary both find their config the
// same way.
func ResolveFilePath(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if dir, err := GetConfigDir(); err == nil {
		return dir + "/" + name
	}
	return name
}

// ResolveFilePathWithSubdir is ResolveFilePath for a file that lives under
// a named subdirectory of the config dir (e.g. media storage).
func ResolveFilePathWithSubdir(subdir, name string) string {
	local := subdir + "/" + name
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if dir, err := GetConfigDir(); err == nil {
		full := dir + "/" + subdir
		if err := os.MkdirAll(full, 0755); err == nil {
			return full + "/" + name
		}
	}
	return local
}

// GetConfigDir returns (creating if needed) this instance's directory
// under the OS user config directory, e.g. ~/.config/fediglade.
func GetConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := base + "/" + Name
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
