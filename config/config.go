// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const EnvPrefix = "MIND"

var dataStorePrefixes = []string{"mysql://", "postgres://", "postgresql://", "sqlite://"}

// Config is the configuration of the corpus tools.
type Config struct {
	Dataset  DatasetConfig   `mapstructure:"dataset"`
	Database DatabaseConfig  `mapstructure:"database"`
	S3       S3Config        `mapstructure:"s3"`
	GCS      GCSConfig       `mapstructure:"gcs"`
	Azure    AzureBlobConfig `mapstructure:"azure"`
}

// DatasetConfig locates a corpus. Dir is a local directory or an object storage
// location such as s3://bucket/prefix, gs://bucket/prefix or azblob://container/prefix.
type DatasetConfig struct {
	Dir          string `mapstructure:"dir" validate:"required"`
	EmbeddingDim int    `mapstructure:"embedding_dim" validate:"gte=0"`
	CacheDir     string `mapstructure:"cache_dir"`
}

type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureBlobConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Dir: ".",
		},
		Database: DatabaseConfig{
			DataStore: "sqlite://mind.db",
		},
		S3: S3Config{
			UseSSL: true,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [dataset]
	v.SetDefault("dataset.dir", defaultConfig.Dataset.Dir)
	v.SetDefault("dataset.embedding_dim", defaultConfig.Dataset.EmbeddingDim)
	v.SetDefault("dataset.cache_dir", defaultConfig.Dataset.CacheDir)
	// [database]
	v.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	v.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [s3]
	v.SetDefault("s3.endpoint", defaultConfig.S3.Endpoint)
	v.SetDefault("s3.access_key_id", defaultConfig.S3.AccessKeyID)
	v.SetDefault("s3.secret_access_key", defaultConfig.S3.SecretAccessKey)
	v.SetDefault("s3.use_ssl", defaultConfig.S3.UseSSL)
	// [gcs]
	v.SetDefault("gcs.credentials_file", defaultConfig.GCS.CredentialsFile)
	// [azure]
	v.SetDefault("azure.connection_string", defaultConfig.Azure.ConnectionString)
	v.SetDefault("azure.account_name", defaultConfig.Azure.AccountName)
	v.SetDefault("azure.account_key", defaultConfig.Azure.AccountKey)
	v.SetDefault("azure.endpoint", defaultConfig.Azure.Endpoint)
}

// LoadConfig reads configuration from defaults, the file at path (skipped if path is empty)
// and environment variables prefixed with MIND_, in that order.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config %s", path)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		return lo.SomeBy(dataStorePrefixes, func(prefix string) bool {
			return strings.HasPrefix(fl.Field().String(), prefix)
		})
	}); err != nil {
		return errors.Trace(err)
	}
	return validate.Struct(config)
}
