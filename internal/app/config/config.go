package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportStdout = "stdout"

	DefaultSMTPPort       = 25
	DefaultConnectTimeout = 5 * time.Second
	DefaultSentMailbox    = "Sent"
)

type Config struct {
	Transport          string         `yaml:"transport"`            // Delivery backend: smtp (default), ses or stdout.
	LogLevel           int            `yaml:"log_level"`            // Logging level (e.g., -4: debug, 0: info, etc.).
	ConnectTimeout     time.Duration  `yaml:"connect_timeout"`      // Timeout for the initial SMTP connection.
	InsecureSkipVerify bool           `yaml:"insecure_skip_verify"` // Skip TLS certificate verification (self-signed relays).
	ExposeBCCHeader    bool           `yaml:"expose_bcc_header"`    // Write BCC recipients into a visible Bcc header.
	MaxAttachmentSize  string         `yaml:"max_attachment_size"`  // Per-file size limit, e.g. "10MB". Empty means unlimited.
	SES                SESConfig      `yaml:"ses"`                  // AWS SES settings, used when transport is ses.
	SentCopy           SentCopyConfig `yaml:"sent_copy"`            // Optional IMAP copy of every sent message.
	Fields             Fields         `yaml:"fields"`               // Message fields supplied by the calling application.
}

// Fields is the named value set handed over by the calling application.
// Every field is optional at this level: a field that was not supplied is
// simply empty, and the mailer decides which ones are required.
type Fields struct {
	FromAddress    string `yaml:"fromAddress"`
	ToAddress      string `yaml:"toAddress"`
	CCAddress      string `yaml:"ccAddress"`
	BCCAddress     string `yaml:"bccAddress"`
	ReplyAddress   string `yaml:"replyAddress"`
	Subject        string `yaml:"subject"`
	BodyText       string `yaml:"bodyText"`
	BodyHTML       string `yaml:"bodyHTML"`
	AttachmentPath string `yaml:"attachmentPath"` // Newline separated list of file paths.
	EmailServer    string `yaml:"emailServer"`
	SMTPPort       int    `yaml:"smtpPort"`
	Hostname       string `yaml:"hostname"` // Local name announced in EHLO.
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	DebugLevel     int    `yaml:"debugLevel"`
}

type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type SentCopyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`  // IMAP server address, host:port (implicit TLS).
	Login    string `yaml:"login"`    // Defaults to fields.username.
	Password string `yaml:"password"` // Defaults to fields.password.
	Mailbox  string `yaml:"mailbox"`  // Defaults to "Sent".
}

// LoadConfig reads configuration from cfgFilepath, expanding ${VAR} references
// with the process environment. Variables from envFilepath are loaded first when
// that file exists. An empty cfgFilepath yields the defaults, so that fields can
// be supplied purely through Fields.Set.
func LoadConfig(cfgFilepath, envFilepath string) (Config, error) {
	var cfg Config

	if envFilepath != "" {
		if _, err := os.Stat(envFilepath); err == nil {
			if err = godotenv.Load(envFilepath); err != nil {
				return cfg, fmt.Errorf("unable to load environment variables from file: %w", err)
			}
		}
	}

	if cfgFilepath == "" {
		cfg.applyDefaults()
		return cfg, nil
	}

	//nolint:gosec
	fileBytes, err := os.ReadFile(cfgFilepath)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("configuration file at this cfgFilepath doesn't exist: %w", err)
		case errors.Is(err, os.ErrPermission):
			return cfg, fmt.Errorf("permission denied for accessing configuration file: %w", err)
		default:
			return cfg, fmt.Errorf("unexpected error during reading configuration file: %w", err)
		}
	}

	envExpanded := os.ExpandEnv(string(fileBytes))
	if err = yaml.Unmarshal([]byte(envExpanded), &cfg); err != nil {
		return cfg, fmt.Errorf("unable to unmarshal configuration file: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportSMTP
	}
	c.Transport = strings.ToLower(c.Transport)
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.SentCopy.Mailbox == "" {
		c.SentCopy.Mailbox = DefaultSentMailbox
	}
}

func (c *Config) validate() error {
	switch c.Transport {
	case TransportSMTP, TransportSES, TransportStdout:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.Transport == TransportSES && c.SES.Region == "" {
		return errors.New("ses transport requires ses.region")
	}
	if c.SentCopy.Enabled && c.SentCopy.Address == "" {
		return errors.New("sent_copy requires an IMAP address")
	}

	return nil
}

// Port returns the configured SMTP port, falling back to 25.
func (f Fields) Port() int {
	if f.SMTPPort <= 0 {
		return DefaultSMTPPort
	}
	return f.SMTPPort
}

// Set assigns a field by its host-side name (e.g. "fromAddress").
func (f *Fields) Set(name, value string) error {
	switch name {
	case "fromAddress":
		f.FromAddress = value
	case "toAddress":
		f.ToAddress = value
	case "ccAddress":
		f.CCAddress = value
	case "bccAddress":
		f.BCCAddress = value
	case "replyAddress":
		f.ReplyAddress = value
	case "subject":
		f.Subject = value
	case "bodyText":
		f.BodyText = value
	case "bodyHTML":
		f.BodyHTML = value
	case "attachmentPath":
		f.AttachmentPath = value
	case "emailServer":
		f.EmailServer = value
	case "hostname":
		f.Hostname = value
	case "username":
		f.Username = value
	case "password":
		f.Password = value
	case "smtpPort", "debugLevel":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		if name == "smtpPort" {
			f.SMTPPort = n
		} else {
			f.DebugLevel = n
		}
	default:
		return fmt.Errorf("unknown field %q", name)
	}

	return nil
}

// SetPair parses a "name=value" assignment, as given on the command line.
func (f *Fields) SetPair(pair string) error {
	name, value, ok := strings.Cut(pair, "=")
	if !ok {
		return fmt.Errorf("field assignment %q: expected name=value", pair)
	}
	return f.Set(strings.TrimSpace(name), value)
}
