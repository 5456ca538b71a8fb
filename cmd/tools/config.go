package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/lychee-technology/formtab"
)

const envPrefix = "FORMTAB"

// loadConfig layers formtab.yaml and FORMTAB_* variables over the defaults.
// FORMTAB_DATABASE_HOST overrides database.host.
func loadConfig(file string) (*formtab.Config, error) {
	v := viper.New()
	setDefaults(v, formtab.DefaultConfig())

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("formtab")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &formtab.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper, d *formtab.Config) {
	db := d.Database
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.database", db.Database)
	v.SetDefault("database.username", db.Username)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.ssl_mode", db.SSLMode)
	v.SetDefault("database.max_connections", db.MaxConnections)
	v.SetDefault("database.conn_max_lifetime", db.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", db.ConnMaxIdleTime)
	v.SetDefault("database.timeout", db.Timeout)

	t := db.Tables
	v.SetDefault("database.tables.forms", t.Forms)
	v.SetDefault("database.tables.attributes", t.Attributes)
	v.SetDefault("database.tables.form_views", t.FormViews)
	v.SetDefault("database.tables.attribute_views", t.AttributeViews)
	v.SetDefault("database.tables.choice_sets", t.ChoiceSets)
	v.SetDefault("database.tables.choices", t.Choices)
	v.SetDefault("database.tables.prompts", t.Prompts)
	v.SetDefault("database.tables.objects", t.Objects)
	v.SetDefault("database.tables.organizations", t.Organizations)
	v.SetDefault("database.tables.restatements", t.Restatements)

	c := d.Compiler
	v.SetDefault("compiler.max_identifier_length", c.MaxIdentifierLength)
	v.SetDefault("compiler.null_codec", string(c.NullCodec))
	v.SetDefault("compiler.allocation_retries", c.AllocationRetries)
	v.SetDefault("compiler.default_language", c.DefaultLanguage)
	v.SetDefault("compiler.default_owner_id", c.DefaultOwnerID)

	q := d.Query
	v.SetDefault("query.default_timeout", q.DefaultTimeout)
	v.SetDefault("query.default_page_size", q.DefaultPageSize)
	v.SetDefault("query.max_page_size", q.MaxPageSize)
	v.SetDefault("query.hydration_batch_size", q.HydrationBatchSize)
	v.SetDefault("query.hydration_workers", q.HydrationWorkers)
	v.SetDefault("query.backend", string(q.Backend))
	v.SetDefault("query.active_status", q.ActiveStatus)

	dk := d.DuckDB
	v.SetDefault("duckdb.path", dk.Path)
	v.SetDefault("duckdb.memory_limit_mb", dk.MemoryLimitMB)
	v.SetDefault("duckdb.threads", dk.Threads)
	v.SetDefault("duckdb.attach_alias", dk.AttachAlias)
	v.SetDefault("duckdb.ping_timeout", dk.PingTimeout)
	v.SetDefault("duckdb.fallback_to_postgres", dk.FallbackToPostgres)
	v.SetDefault("duckdb.failure_threshold", dk.FailureThreshold)
	v.SetDefault("duckdb.failure_window", dk.FailureWindow)
	v.SetDefault("duckdb.open_duration", dk.OpenDuration)

	l := d.Logging
	v.SetDefault("logging.level", l.Level)
	v.SetDefault("logging.format", l.Format)
	v.SetDefault("logging.log_ddl", l.LogDDL)
	v.SetDefault("logging.log_searches", l.LogSearches)
}
