package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tasqc/keytrans-client/internal/keyservice"
)

const (
	// Supported notifier types.
	TypeHTTP   = "http"
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "pubsub"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

// NotifierConfig is one entry of the notifiers file.
type NotifierConfig struct {
	ID      string `json:"id" yaml:"id"`
	Type    string `json:"type" yaml:"type"`
	Enabled *bool  `json:"enabled" yaml:"enabled"`
	// Kinds restricts the notifier to these failure kinds (dns, connection,
	// http_status, timeout, transport_init). Empty means every failure.
	Kinds []string `json:"kinds" yaml:"kinds"`

	HTTP   *HTTPNotifierConfig `json:"http" yaml:"http"`
	SQS    *SQSNotifierConfig  `json:"sqs" yaml:"sqs"`
	SNS    *SNSNotifierConfig  `json:"sns" yaml:"sns"`
	PubSub *PubSubConfig       `json:"pubsub" yaml:"pubsub"`
}

// AWSAccess holds optional static credentials and an endpoint override
// (e.g. localstack). Empty values fall back to the default AWS chain.
type AWSAccess struct {
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `json:"session_token" yaml:"session_token"`
}

// SQSNotifierConfig names the queue failure events are sent to.
type SQSNotifierConfig struct {
	AWSAccess `yaml:",inline"`
	QueueURL  string `json:"uri" yaml:"uri"`
}

// SNSNotifierConfig names the topic failure events are published on.
type SNSNotifierConfig struct {
	AWSAccess `yaml:",inline"`
	TopicARN  string `json:"topic_arn" yaml:"topic_arn"`
}

// PubSubConfig holds Google Cloud Pub/Sub settings.
type PubSubConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
}

// HTTPNotifierConfig describes a webhook receiving failure events as JSON.
type HTTPNotifierConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ConfigRegistry is the validated content of a notifiers file. It is
// read-only once loaded.
type ConfigRegistry struct {
	notifiers []NotifierConfig
	idx       map[string]int
}

// LoadRegistry reads a YAML or JSON notifiers file. The extension picks the
// decoder; files without a known extension are tried as YAML, then JSON.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("notifiers file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notifiers file: %w", err)
	}

	var doc struct {
		Notifiers []NotifierConfig `json:"notifiers" yaml:"notifiers"`
	}
	if err := decodeNotifiers(raw, filepath.Ext(path), &doc); err != nil {
		return nil, err
	}

	reg := &ConfigRegistry{idx: make(map[string]int, len(doc.Notifiers))}
	for i, cfg := range doc.Notifiers {
		cfg.normalize()
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("notifiers[%d]: %w", i, err)
		}
		if _, dup := reg.idx[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate notifier id %q", cfg.ID)
		}
		reg.idx[cfg.ID] = len(reg.notifiers)
		reg.notifiers = append(reg.notifiers, cfg)
	}
	return reg, nil
}

func decodeNotifiers(raw []byte, ext string, out any) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode yaml notifiers: %w", err)
		}
		return nil
	case ".json":
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode json notifiers: %w", err)
		}
		return nil
	}
	if yaml.Unmarshal(raw, out) == nil || json.Unmarshal(raw, out) == nil {
		return nil
	}
	return errors.New("notifiers file format not recognized (expected YAML or JSON)")
}

// normalize trims every field and fills in defaults.
func (cfg *NotifierConfig) normalize() {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Enabled == nil {
		on := true
		cfg.Enabled = &on
	}
	for i, k := range cfg.Kinds {
		cfg.Kinds[i] = strings.ToLower(strings.TrimSpace(k))
	}

	if c := cfg.HTTP; c != nil {
		c.URL = strings.TrimSpace(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		c.Headers = trimHeaders(c.Headers)
	}
	if c := cfg.SQS; c != nil {
		c.QueueURL = strings.TrimSpace(c.QueueURL)
		c.AWSAccess.normalize()
	}
	if c := cfg.SNS; c != nil {
		c.TopicARN = strings.TrimSpace(c.TopicARN)
		c.AWSAccess.normalize()
	}
	if c := cfg.PubSub; c != nil {
		c.ProjectID = strings.TrimSpace(c.ProjectID)
		c.Topic = strings.TrimSpace(c.Topic)
		c.CredentialsFile = strings.TrimSpace(c.CredentialsFile)
		c.Endpoint = strings.TrimSpace(c.Endpoint)
	}
}

func (a *AWSAccess) normalize() {
	a.Region = strings.TrimSpace(a.Region)
	a.Endpoint = strings.TrimSpace(a.Endpoint)
	a.AccessKeyID = strings.TrimSpace(a.AccessKeyID)
	a.SecretAccessKey = strings.TrimSpace(a.SecretAccessKey)
	a.SessionToken = strings.TrimSpace(a.SessionToken)
}

// trimHeaders drops headers whose name or value is blank.
func trimHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// required lists, per notifier type, the settings a usable sink needs.
var required = map[string]func(NotifierConfig) []string{
	TypeHTTP: func(cfg NotifierConfig) []string {
		if cfg.HTTP == nil {
			return []string{"http"}
		}
		return missing("http.url", cfg.HTTP.URL)
	},
	TypeSQS: func(cfg NotifierConfig) []string {
		if cfg.SQS == nil {
			return []string{"sqs"}
		}
		return missing("sqs.uri", cfg.SQS.QueueURL, "sqs.region", cfg.SQS.Region)
	},
	TypeSNS: func(cfg NotifierConfig) []string {
		if cfg.SNS == nil {
			return []string{"sns"}
		}
		return missing("sns.topic_arn", cfg.SNS.TopicARN, "sns.region", cfg.SNS.Region)
	},
	TypePubSub: func(cfg NotifierConfig) []string {
		if cfg.PubSub == nil {
			return []string{"pubsub"}
		}
		return missing("pubsub.project_id", cfg.PubSub.ProjectID, "pubsub.topic", cfg.PubSub.Topic)
	},
}

// missing takes name/value pairs and returns the names with empty values.
func missing(pairs ...string) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			out = append(out, pairs[i])
		}
	}
	return out
}

func (cfg NotifierConfig) validate() error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("type is required for notifier %q", cfg.ID)
	}
	check, ok := required[cfg.Type]
	if !ok {
		return fmt.Errorf("unknown type %q for notifier %q", cfg.Type, cfg.ID)
	}
	if names := check(cfg); len(names) > 0 {
		return fmt.Errorf("notifier %q is missing %s", cfg.ID, strings.Join(names, ", "))
	}
	for _, name := range cfg.Kinds {
		kind, ok := keyservice.ParseKind(name)
		if !ok || kind == keyservice.KindNone {
			return fmt.Errorf("notifier %q lists %q, which is not a failure kind", cfg.ID, name)
		}
	}
	return nil
}

// Accepts reports whether failures of kind are routed to this notifier.
func (cfg NotifierConfig) Accepts(kind string) bool {
	if len(cfg.Kinds) == 0 {
		return true
	}
	for _, k := range cfg.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// EnabledValue returns the enabled flag, defaulting to true.
func (cfg NotifierConfig) EnabledValue() bool {
	return cfg.Enabled == nil || *cfg.Enabled
}

// ByID returns the notifier config with the given id.
func (r *ConfigRegistry) ByID(id string) (NotifierConfig, bool) {
	if r == nil {
		return NotifierConfig{}, false
	}
	i, ok := r.idx[strings.TrimSpace(id)]
	if !ok {
		return NotifierConfig{}, false
	}
	return r.notifiers[i], true
}

// All returns every configured notifier in file order.
func (r *ConfigRegistry) All() []NotifierConfig {
	if r == nil {
		return nil
	}
	return append([]NotifierConfig(nil), r.notifiers...)
}

// Enabled returns the notifiers that are switched on.
func (r *ConfigRegistry) Enabled() []NotifierConfig {
	var out []NotifierConfig
	for _, cfg := range r.All() {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}
