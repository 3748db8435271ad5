package types

// ProjectConfig represents the top-level tfgate.yaml configuration.
type ProjectConfig struct {
	Store     string                   `yaml:"store"` // "dynamodb" or "redis"
	DynamoDB  *DynamoDBConfig          `yaml:"dynamodb,omitempty"`
	Redis     *RedisConfig             `yaml:"redis,omitempty"`
	Artifacts *ArtifactConfig          `yaml:"artifacts,omitempty"`
	Terraform *TerraformConfig         `yaml:"terraform"`
	Server    *ServerConfig            `yaml:"server,omitempty"`
	Lock      *LockConfig              `yaml:"lock,omitempty"`
	Alerts    []AlertConfig            `yaml:"alerts,omitempty"`
	Reviewers map[Environment][]string `yaml:"reviewers,omitempty"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName    string `yaml:"tableName" json:"tableName"`
	Region       string `yaml:"region" json:"region"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	RetentionTTL string `yaml:"retentionTtl,omitempty" json:"retentionTtl,omitempty"`
	CreateTable  bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// RedisConfig holds Redis/Valkey connection settings.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password,omitempty"`
	DB           int    `yaml:"db,omitempty"`
	KeyPrefix    string `yaml:"keyPrefix,omitempty"`
	RetentionTTL string `yaml:"retentionTtl,omitempty"` // default "168h" (7 days)
}

// ArtifactConfig configures the plan artifact store.
type ArtifactConfig struct {
	Type      string `yaml:"type"` // "s3" or "file"
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Dir       string `yaml:"dir,omitempty"`
	Retention string `yaml:"retention,omitempty"` // minimum "24h"
}

// EnvironmentConfig holds the per-environment Terraform working set.
type EnvironmentConfig struct {
	Dir        string `yaml:"dir"`
	VarFile    string `yaml:"varFile,omitempty"`
	BackendKey string `yaml:"backendKey"`
}

// TerraformConfig configures the provisioning engine invocation.
type TerraformConfig struct {
	Binary       string                            `yaml:"binary,omitempty"` // default "terraform"
	Environments map[Environment]EnvironmentConfig `yaml:"environments"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty"`
}

// LockConfig tunes per-environment lock acquisition.
type LockConfig struct {
	TTL               string  `yaml:"ttl,omitempty"`               // default "15m"
	MaxAttempts       int     `yaml:"maxAttempts,omitempty"`       // default 5
	BackoffSeconds    int     `yaml:"backoffSeconds,omitempty"`    // default 5
	BackoffMultiplier float64 `yaml:"backoffMultiplier,omitempty"` // default 2.0
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type     AlertType `yaml:"type" json:"type"`
	URL      string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
}
