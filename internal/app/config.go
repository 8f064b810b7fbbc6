package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/bnema/hearth/internal/domain"
	"github.com/bnema/hearth/internal/usecase/units"
)

// DefaultInputsPath is where the provisioning layer drops its inputs.
const DefaultInputsPath = "/etc/hearth/inputs.env"

const configFileName = "hearth.toml"

// configSearchPaths are tried in order when no config file is given.
var configSearchPaths = []string{"/etc/hearth", "$HOME/.config/hearth", "."}

// Config holds the application configuration.
type Config struct {
	Disk struct {
		Device        string   `mapstructure:"device"`
		DeviceName    string   `mapstructure:"device_name"`
		MountPoint    string   `mapstructure:"mount_point"`
		FSType        string   `mapstructure:"fs_type"`
		Label         string   `mapstructure:"label"`
		FormatOptions []string `mapstructure:"format_options"`
		MountOptions  []string `mapstructure:"mount_options"`
		Mode          string   `mapstructure:"mode"` // octal, e.g. "0777"
		OwnerUID      int      `mapstructure:"owner_uid"`
		OwnerGID      int      `mapstructure:"owner_gid"`
		AllowNonBlock bool     `mapstructure:"allow_non_block"`
		Fstab         string   `mapstructure:"fstab"`
	} `mapstructure:"disk"`

	Site struct {
		FQDN  string `mapstructure:"fqdn"`
		Email string `mapstructure:"email"`
	} `mapstructure:"site"`

	App struct {
		Name       string   `mapstructure:"name"`
		Image      string   `mapstructure:"image"`
		Port       int      `mapstructure:"port"`
		HostPort   int      `mapstructure:"host_port"`
		DataTarget string   `mapstructure:"data_target"`
		Env        []string `mapstructure:"env"` // KEY=VALUE
	} `mapstructure:"app"`

	Proxy struct {
		Name       string   `mapstructure:"name"`
		Image      string   `mapstructure:"image"`
		Ports      []string `mapstructure:"ports"`
		ConfigPath string   `mapstructure:"config_path"` // defaults to {mount_point}/{proxy.name}/Caddyfile
		Env        []string `mapstructure:"env"`
	} `mapstructure:"proxy"`

	DDNS struct {
		Name         string   `mapstructure:"name"`
		Image        string   `mapstructure:"image"`
		Subdomain    string   `mapstructure:"subdomain"`
		Token        string   `mapstructure:"token"`
		SubdomainVar string   `mapstructure:"subdomain_var"`
		TokenVar     string   `mapstructure:"token_var"`
		Env          []string `mapstructure:"env"`
	} `mapstructure:"ddns"`

	Docker struct {
		Host          string        `mapstructure:"host"`
		Binary        string        `mapstructure:"binary"`
		Network       string        `mapstructure:"network"`
		NetworkDriver string        `mapstructure:"network_driver"`
		ReadyTimeout  time.Duration `mapstructure:"ready_timeout"`
		MinVersion    string        `mapstructure:"min_version"`
	} `mapstructure:"docker"`

	Registry struct {
		Server          string `mapstructure:"server"`
		Username        string `mapstructure:"username"`
		Password        string `mapstructure:"password"`
		CredentialsPath string `mapstructure:"credentials_path"`
	} `mapstructure:"registry"`

	Images struct {
		PullRetries     int           `mapstructure:"pull_retries"`
		InitialInterval time.Duration `mapstructure:"initial_interval"`
		MaxInterval     time.Duration `mapstructure:"max_interval"`
	} `mapstructure:"images"`

	Systemd struct {
		Backend     string `mapstructure:"backend"` // "auto", "dbus" or "systemctl"
		UnitDir     string `mapstructure:"unit_dir"`
		EnvDir      string `mapstructure:"env_dir"`
		StopTimeout int    `mapstructure:"stop_timeout"`
		RestartSec  int    `mapstructure:"restart_sec"`
	} `mapstructure:"systemd"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   struct {
			Enabled    bool   `mapstructure:"enabled"`
			Path       string `mapstructure:"path"`
			MaxSize    int    `mapstructure:"max_size"`
			MaxBackups int    `mapstructure:"max_backups"`
			MaxAge     int    `mapstructure:"max_age"`
		} `mapstructure:"file"`
	} `mapstructure:"logging"`
}

// Options select the files a kernel is built from.
type Options struct {
	ConfigPath string
	InputsPath string
}

// initConfig loads the configuration file, applies provisioning inputs on top
// and validates the result.
func initConfig(opts Options) (*viper.Viper, Config, error) {
	v := viper.New()
	if err := loadConfig(v, opts.ConfigPath); err != nil {
		return nil, Config{}, fmt.Errorf("%w: %w", domain.ErrConfigLoadFailed, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Config{}, fmt.Errorf("%w: failed to unmarshal config: %w", domain.ErrConfigLoadFailed, err)
	}

	inputs := opts.InputsPath
	explicit := inputs != ""
	if !explicit {
		inputs = DefaultInputsPath
	}
	if err := applyInputs(&cfg, inputs, explicit); err != nil {
		return nil, Config{}, err
	}

	resolveDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return nil, Config{}, err
	}
	return v, cfg, nil
}

func loadConfig(v *viper.Viper, configPath string) error {
	// Keys without a meaningful default are still registered so HEARTH_*
	// environment overrides reach them on Unmarshal.
	for _, key := range []string{
		"disk.device", "disk.device_name", "site.fqdn", "site.email", "app.image",
		"ddns.subdomain", "ddns.token", "docker.host", "docker.min_version",
		"registry.server", "registry.username", "registry.password", "proxy.config_path",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("disk.mount_point", "/mnt/disks/data")
	v.SetDefault("disk.fs_type", "ext4")
	v.SetDefault("disk.label", "hearth-data")
	v.SetDefault("disk.format_options", []string{"-m", "0", "-E", "lazy_itable_init=0,lazy_journal_init=0,discard"})
	v.SetDefault("disk.mount_options", []string{"discard", "defaults", "nofail"})
	v.SetDefault("disk.mode", "0777")
	v.SetDefault("disk.owner_uid", -1)
	v.SetDefault("disk.owner_gid", -1)
	v.SetDefault("disk.allow_non_block", false)
	v.SetDefault("disk.fstab", "/etc/fstab")
	v.SetDefault("app.name", "app")
	v.SetDefault("app.port", 8501)
	v.SetDefault("app.data_target", "/app/data")
	v.SetDefault("proxy.name", "caddy")
	v.SetDefault("proxy.image", "caddy:2")
	v.SetDefault("proxy.ports", []string{"80:80", "443:443", "443:443/udp"})
	v.SetDefault("ddns.name", "ddns")
	v.SetDefault("ddns.image", "lscr.io/linuxserver/duckdns:latest")
	v.SetDefault("ddns.subdomain_var", "SUBDOMAINS")
	v.SetDefault("ddns.token_var", "TOKEN")
	v.SetDefault("docker.binary", "/usr/bin/docker")
	v.SetDefault("docker.network", "hearth")
	v.SetDefault("docker.network_driver", "bridge")
	v.SetDefault("docker.ready_timeout", "60s")
	v.SetDefault("registry.credentials_path", "/root/.docker/config.json")
	v.SetDefault("images.pull_retries", 2)
	v.SetDefault("images.initial_interval", "1s")
	v.SetDefault("images.max_interval", "10s")
	v.SetDefault("systemd.backend", "auto")
	v.SetDefault("systemd.unit_dir", "/etc/systemd/system")
	v.SetDefault("systemd.env_dir", "/etc/hearth/env")
	v.SetDefault("systemd.stop_timeout", 10)
	v.SetDefault("systemd.restart_sec", 5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "/var/log/hearth/hearth.log")
	v.SetDefault("logging.file.max_size", 20)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("HEARTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

// ConfigureViper sets up viper with standard config file search paths.
// Config file: hearth.toml
// Search paths (in order): /etc/hearth, ~/.config/hearth, current directory
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(strings.TrimSuffix(configFileName, ".toml"))
		v.SetConfigType("toml")
		for _, dir := range configSearchPaths {
			v.AddConfigPath(dir)
		}
	}
}

// configFileFor returns the config file a kernel built from opts reads. When
// none exists yet it returns the first search location, where one would be
// picked up.
func configFileFor(opts Options) string {
	if opts.ConfigPath != "" {
		return opts.ConfigPath
	}
	osFs := afero.NewOsFs()
	for _, dir := range configSearchPaths {
		candidate := filepath.Join(os.ExpandEnv(dir), configFileName)
		if ok, _ := afero.Exists(osFs, candidate); ok {
			return candidate
		}
	}
	return filepath.Join(os.ExpandEnv(configSearchPaths[0]), configFileName)
}

// applyInputs overlays the provisioning layer's dotenv file. A missing file
// is only an error when it was asked for explicitly.
func applyInputs(cfg *Config, path string, explicit bool) error {
	inputs, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("%w: inputs %s: %w", domain.ErrConfigLoadFailed, path, err)
	}

	set := func(dst *string, key string) {
		if v, ok := inputs[key]; ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Disk.DeviceName, "DEVICE_NAME")
	set(&cfg.Disk.Device, "DEVICE_PATH")
	set(&cfg.Site.FQDN, "FQDN")
	set(&cfg.DDNS.Subdomain, "DDNS_SUBDOMAIN")
	set(&cfg.DDNS.Token, "DDNS_TOKEN")
	set(&cfg.App.Image, "APP_IMAGE")
	set(&cfg.Registry.Username, "REGISTRY_USERNAME")
	set(&cfg.Registry.Password, "REGISTRY_PASSWORD")
	return nil
}

func resolveDefaults(cfg *Config) {
	if cfg.Disk.Device == "" && cfg.Disk.DeviceName != "" {
		cfg.Disk.Device = "/dev/disk/by-id/google-" + cfg.Disk.DeviceName
	}
	if cfg.Proxy.ConfigPath == "" {
		cfg.Proxy.ConfigPath = filepath.Join(cfg.Disk.MountPoint, cfg.Proxy.Name, "Caddyfile")
	}
}

func validate(cfg Config) error {
	var problems []string
	require := func(value, field string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, field+" is required")
		}
	}
	require(cfg.Disk.Device, "disk.device (or DEVICE_NAME)")
	require(cfg.Site.FQDN, "site.fqdn (or FQDN)")
	require(cfg.App.Image, "app.image (or APP_IMAGE)")
	require(cfg.DDNS.Subdomain, "ddns.subdomain (or DDNS_SUBDOMAIN)")
	require(cfg.DDNS.Token, "ddns.token (or DDNS_TOKEN)")

	if cfg.Disk.MountPoint != "" && !filepath.IsAbs(cfg.Disk.MountPoint) {
		problems = append(problems, "disk.mount_point must be absolute")
	}
	if _, err := parseMode(cfg.Disk.Mode); err != nil {
		problems = append(problems, err.Error())
	}
	for _, image := range []string{cfg.App.Image, cfg.Proxy.Image, cfg.DDNS.Image} {
		if image == "" {
			continue
		}
		if _, err := name.ParseReference(image); err != nil {
			problems = append(problems, fmt.Sprintf("image %q: %v", image, err))
		}
	}
	for _, env := range [][]string{cfg.App.Env, cfg.Proxy.Env, cfg.DDNS.Env} {
		if _, err := parseEnv(env); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if _, err := units.ParsePorts(cfg.Proxy.Ports); err != nil {
		problems = append(problems, err.Error())
	}
	switch cfg.Systemd.Backend {
	case "auto", "dbus", "systemctl":
	default:
		problems = append(problems, fmt.Sprintf("systemd.backend %q is not one of auto, dbus, systemctl", cfg.Systemd.Backend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func parseMode(s string) (fs.FileMode, error) {
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil || m > 0o7777 {
		return 0, fmt.Errorf("disk.mode %q is not an octal permission", s)
	}
	return fs.FileMode(m), nil
}

// parseEnv turns KEY=VALUE entries into a map. Keys keep their case.
func parseEnv(entries []string) (map[string]string, error) {
	env := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("env entry %q is not KEY=VALUE", e)
		}
		env[k] = v
	}
	return env, nil
}
