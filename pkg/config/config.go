// Package config loads the racestandings YAML configuration.
package config

import (
	"os"
	"racestandings/pkg/laptime"
	"racestandings/pkg/logsource"
	"racestandings/pkg/race"
	"racestandings/pkg/standings"
	"racestandings/pkg/storage"
	"racestandings/pkg/webserver"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const DefaultPath = "./racestandings.yml"

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Race          RaceConfig          `yaml:"race"`
	Log           LogConfig           `yaml:"log"`
	Storage       StorageConfig       `yaml:"storage"`
	Webserver     WebserverConfig     `yaml:"webserver"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type RaceConfig struct {
	Key              string `yaml:"key"`
	FinalLap         int    `yaml:"final_lap"`
	ProvisionalOrder string `yaml:"provisional_order"`
	GapPolicy        string `yaml:"gap_policy"`
	BatchSize        int    `yaml:"batch_size"`
}

type LogConfig struct {
	Path         string        `yaml:"path"`
	Follow       bool          `yaml:"follow"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type StorageConfig struct {
	// Path of the SQLite database. Empty keeps races in memory only.
	Path string `yaml:"path"`
}

type WebserverConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type NotificationsConfig struct {
	TelegramToken   string  `yaml:"telegram_token"`
	TelegramChatIDs []int64 `yaml:"telegram_chat_ids"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	rc := race.DefaultConfig()
	return Config{
		Race: RaceConfig{
			Key:              "default",
			FinalLap:         rc.FinalLap,
			ProvisionalOrder: string(rc.Provisional),
			GapPolicy:        string(rc.GapPolicy),
			BatchSize:        rc.BatchSize,
		},
		Log: LogConfig{
			PollInterval: logsource.DefaultPollInterval,
		},
		Storage: StorageConfig{
			Path: storage.DefaultPath,
		},
		Webserver: WebserverConfig{
			Address: webserver.DefaultAddress,
		},
		Logging: LoggingConfig{
			Level: logrus.InfoLevel.String(),
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (Config, error) {
	conf := Default()

	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return conf, errors.Wrapf(err, "opening config %s", path)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&conf); err != nil {
			return conf, errors.Wrapf(err, "decoding config %s", path)
		}
	}

	if err := conf.applyEnv(os.LookupEnv); err != nil {
		return conf, err
	}
	return conf, conf.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("WEBSERVER_ADDRESS"); ok && v != "" {
		c.Webserver.Address = v
		c.Webserver.Enabled = true
	}
	if v, ok := lookup("TELEGRAM_TOKEN"); ok && v != "" {
		c.Notifications.TelegramToken = v
	}
	if v, ok := lookup("TELEGRAM_CHAT_IDS"); ok && v != "" {
		ids, err := parseChatIDs(v)
		if err != nil {
			return err
		}
		c.Notifications.TelegramChatIDs = ids
	}
	if v, ok := lookup("RACESTANDINGS_DB"); ok {
		c.Storage.Path = v
	}
	if v, ok := lookup("RACESTANDINGS_LOG"); ok && v != "" {
		c.Log.Path = v
	}
	return nil
}

func parseChatIDs(v string) ([]int64, error) {
	var ids []int64
	for _, field := range strings.Split(v, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "telegram chat id %q", field)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c Config) Validate() error {
	if c.Race.FinalLap < 1 {
		return errors.Wrapf(ErrInvalid, "race.final_lap must be at least 1, got %d", c.Race.FinalLap)
	}
	if !standings.ProvisionalOrder(c.Race.ProvisionalOrder).Valid() {
		return errors.Wrapf(ErrInvalid, "race.provisional_order %q", c.Race.ProvisionalOrder)
	}
	if !laptime.GapPolicy(c.Race.GapPolicy).Valid() {
		return errors.Wrapf(ErrInvalid, "race.gap_policy %q", c.Race.GapPolicy)
	}
	if c.Race.BatchSize < 1 {
		return errors.Wrapf(ErrInvalid, "race.batch_size must be at least 1, got %d", c.Race.BatchSize)
	}
	if !race.ValidKey(c.Race.Key) {
		return errors.Wrapf(ErrInvalid, "race.key %q", c.Race.Key)
	}
	if c.Log.PollInterval < 0 {
		return errors.Wrapf(ErrInvalid, "log.poll_interval %s", c.Log.PollInterval)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrapf(ErrInvalid, "logging.level %q", c.Logging.Level)
	}
	if len(c.Notifications.TelegramChatIDs) > 0 && c.Notifications.TelegramToken == "" {
		return errors.Wrap(ErrInvalid, "notifications.telegram_chat_ids set without a telegram token")
	}
	return nil
}

// RaceManagerConfig converts the race section for the race manager.
func (c Config) RaceManagerConfig() race.Config {
	return race.Config{
		FinalLap:    c.Race.FinalLap,
		Provisional: standings.ProvisionalOrder(c.Race.ProvisionalOrder),
		GapPolicy:   laptime.GapPolicy(c.Race.GapPolicy),
		BatchSize:   c.Race.BatchSize,
	}
}

func (c Config) LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
