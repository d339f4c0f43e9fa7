package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "intake"
	DefaultPGSSLMode    = "disable"
	DefaultSessionTTL   = "24h"
	DefaultGCSchedule   = "0 * * * *"
	DefaultDriveUpload  = "https://www.googleapis.com/upload/drive/v3/files"
	DefaultDriveToken   = "https://oauth2.googleapis.com/token"
)

type Config struct {
	Log          LogConfig          `toml:"log"`
	Server       ServerConfig       `toml:"server"`
	Auth         AuthConfig         `toml:"auth"`
	Postgres     PostgresConfig     `toml:"postgres"`
	Telegram     TelegramConfig     `toml:"telegram"`
	WhatsApp     WhatsAppConfig     `toml:"whatsapp"`
	AgentGateway AgentGatewayConfig `toml:"agent_gateway"`
	Storage      StorageConfig      `toml:"storage"`
	CRM          CRMConfig          `toml:"crm"`
	Intake       IntakeConfig       `toml:"intake"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// PublicURL is the externally reachable base URL used when
	// registering channel webhooks.
	PublicURL string `toml:"public_url"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type TelegramConfig struct {
	BotToken           string `toml:"bot_token"`
	MaxAttachmentBytes int64  `toml:"max_attachment_bytes"`
}

func (c TelegramConfig) Enabled() bool {
	return c.BotToken != ""
}

type WhatsAppConfig struct {
	AccessToken        string `toml:"access_token"`
	PhoneNumberID      string `toml:"phone_number_id"`
	VerifyToken        string `toml:"verify_token"`
	GraphBaseURL       string `toml:"graph_base_url"`
	MaxAttachmentBytes int64  `toml:"max_attachment_bytes"`
}

func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

type AgentGatewayConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c AgentGatewayConfig) BaseURL() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 8081
	}
	return "http://" + host + ":" + fmt.Sprint(port)
}

type StorageConfig struct {
	UploadURL    string `toml:"upload_url"`
	TokenURL     string `toml:"token_url"`
	FolderID     string `toml:"folder_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
}

func (c StorageConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

type CRMConfig struct {
	BaseURL     string `toml:"base_url"`
	AccessToken string `toml:"access_token"`
}

type IntakeConfig struct {
	SessionTTL    string `toml:"session_ttl"`
	GCSchedule    string `toml:"gc_schedule"`
	ReplyPacingMs int    `toml:"reply_pacing_ms"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		AgentGateway: AgentGatewayConfig{
			Host: "127.0.0.1",
			Port: 8081,
		},
		Storage: StorageConfig{
			UploadURL: DefaultDriveUpload,
			TokenURL:  DefaultDriveToken,
		},
		Intake: IntakeConfig{
			SessionTTL: DefaultSessionTTL,
			GCSchedule: DefaultGCSchedule,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
