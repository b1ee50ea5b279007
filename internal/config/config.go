package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	GeneralParams  GeneralParams
	MainDBParams   MainDBParams
	KVParams       KVParams
	S3Params       S3Params
	WhatsAppParams WhatsAppParams
	OpenAIParams   OpenAIParams
	AlexaParams    AlexaParams
}

type GeneralParams struct {
	Env           string
	HTTPaddress   string
	PublicBaseURL string
	MediaDir      string
}

type MainDBParams struct {
	Username string
	Password string
	Name     string
	Port     int
	Host     string
	Timeout  int
}

type KVParams struct {
	Host     string
	Password string
}

type S3Params struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

type WhatsAppParams struct {
	APIURL        string
	DeviceID      string
	WebhookSecret string
}

type OpenAIParams struct {
	APIKey       string
	BaseURL      string
	Model        string
	WhisperModel string
}

type AlexaParams struct {
	ClientID     string
	ClientSecret string
	UserID       string
	SkillID      string
}

type ConfigManager struct {
	v      *viper.Viper
	config *Config
}

// NewConfigManager creates new config manager that handles
// all viper config options and loads a config from yaml
func NewConfigManager(configPath string) (*ConfigManager, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cm := &ConfigManager{v: v}

	if err := cm.loadConfig(); err != nil {
		return nil, err
	}

	return cm, nil
}

// Extracting data from yaml file and loading into Config
func (cm *ConfigManager) loadConfig() error {
	cm.config = &Config{
		GeneralParams: GeneralParams{
			Env:           cm.v.GetString("general_params.env"),
			HTTPaddress:   cm.v.GetString("general_params.http_server_address"),
			PublicBaseURL: cm.v.GetString("general_params.public_base_url"),
			MediaDir:      cm.v.GetString("general_params.media_dir"),
		},
		MainDBParams: MainDBParams{
			Username: cm.v.GetString("main_db_params.db_username"),
			Password: cm.v.GetString("main_db_params.db_password"),
			Name:     cm.v.GetString("main_db_params.db_name"),
			Port:     cm.v.GetInt("main_db_params.db_port"),
			Host:     cm.v.GetString("main_db_params.db_host"),
			Timeout:  cm.v.GetInt("main_db_params.db_timeout"),
		},
		KVParams: KVParams{
			Host:     cm.v.GetString("kv_params.host"),
			Password: cm.v.GetString("kv_params.password"),
		},
		S3Params: S3Params{
			Endpoint:        cm.v.GetString("s3_params.endpoint"),
			AccessKeyID:     cm.v.GetString("s3_params.access_key_id"),
			SecretAccessKey: cm.v.GetString("s3_params.secret_access_key"),
			UseSSL:          cm.v.GetBool("s3_params.use_ssl"),
			BucketName:      cm.v.GetString("s3_params.bucket_name"),
		},
		WhatsAppParams: WhatsAppParams{
			APIURL:        cm.v.GetString("whatsapp_params.api_url"),
			DeviceID:      cm.v.GetString("whatsapp_params.device_id"),
			WebhookSecret: cm.v.GetString("whatsapp_params.webhook_secret"),
		},
		OpenAIParams: OpenAIParams{
			APIKey:       cm.v.GetString("openai_params.api_key"),
			BaseURL:      cm.v.GetString("openai_params.base_url"),
			Model:        cm.v.GetString("openai_params.model"),
			WhisperModel: cm.v.GetString("openai_params.whisper_model"),
		},
		AlexaParams: AlexaParams{
			ClientID:     cm.v.GetString("alexa_params.client_id"),
			ClientSecret: cm.v.GetString("alexa_params.client_secret"),
			UserID:       cm.v.GetString("alexa_params.user_id"),
			SkillID:      cm.v.GetString("alexa_params.skill_id"),
		},
	}
	return nil
}

// Geting config instance
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// Compiling a string to connect to main db
func (db *MainDBParams) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=%d&sslmode=disable",
		db.Username,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
		db.Timeout,
	)
}

func (c *Config) Validate() error {
	// Checking http address
	if c.GeneralParams.HTTPaddress == "" {
		return fmt.Errorf("parameter http_server_address is requred")
	}

	// Public URL ends up inside Alexa audio directives, a bad value
	// here only shows up as a playback failure on the device
	if c.GeneralParams.PublicBaseURL == "" {
		return fmt.Errorf("parameter public_base_url is required")
	}

	if c.GeneralParams.MediaDir == "" {
		return fmt.Errorf("parameter media_dir is required")
	}

	// Checking out enviroment variable
	switch c.GeneralParams.Env {
	case "dev", "prod", "test":
	default:
		return fmt.Errorf("env parameter is invalid: %s. try dev/prod/test instead", c.GeneralParams.Env)
	}

	// Checking MainDbparams
	for name, mainDbConf := range map[string]MainDBParams{
		"MainDB": c.MainDBParams,
	} {
		if mainDbConf.Host == "" {
			return fmt.Errorf("%s: host is required", name)
		}
		if mainDbConf.Username == "" {
			return fmt.Errorf("%s: username is required", name)
		}
		if mainDbConf.Password == "" {
			return fmt.Errorf("%s: password is requred", name)
		}
		if mainDbConf.Port != 5432 {
			return fmt.Errorf("%s: port is invalid", name)
		}
	}

	// Checking key-value store params
	if c.KVParams.Host == "" {
		return fmt.Errorf("KV host is required")
	}

	// Checking S3 params
	if c.S3Params.Endpoint == "" {
		return fmt.Errorf("S3 endpoint is required")
	}
	if c.S3Params.AccessKeyID == "" {
		return fmt.Errorf("S3 access_key id is required")
	}
	if c.S3Params.SecretAccessKey == "" {
		return fmt.Errorf("S3 secret_access_key is required")
	}
	if c.S3Params.BucketName == "" {
		return fmt.Errorf("S3 bucket name is required")
	}

	// Checking WhatsApp REST params
	if c.WhatsAppParams.APIURL == "" {
		return fmt.Errorf("whatsapp api_url is required")
	}
	if c.WhatsAppParams.DeviceID == "" {
		return fmt.Errorf("whatsapp device_id is required")
	}

	// Checking OpenAI params
	if c.OpenAIParams.APIKey == "" {
		return fmt.Errorf("openai api_key is required")
	}

	return nil
}
