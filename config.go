package formtab

import (
	"strconv"
	"time"
)

// Config consolidates settings for the compiler, the query engine and the tools
type Config struct {
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Compiler CompilerConfig `json:"compiler" mapstructure:"compiler"`
	Query    QueryConfig    `json:"query" mapstructure:"query"`
	DuckDB   DuckDBConfig   `json:"duckdb" mapstructure:"duckdb"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	Database        string        `json:"database" mapstructure:"database"`
	Username        string        `json:"username" mapstructure:"username"`
	Password        string        `json:"password" mapstructure:"password"`
	SSLMode         string        `json:"sslMode" mapstructure:"ssl_mode"`
	MaxConnections  int           `json:"maxConnections" mapstructure:"max_connections"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" mapstructure:"conn_max_idle_time"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	Tables          TableNames    `json:"tables" mapstructure:"tables"`
}

// TableNames holds the names of the metadata and collaborator tables.
type TableNames struct {
	Forms          string `json:"forms" mapstructure:"forms"`
	Attributes     string `json:"attributes" mapstructure:"attributes"`
	FormViews      string `json:"formViews" mapstructure:"form_views"`
	AttributeViews string `json:"attributeViews" mapstructure:"attribute_views"`
	ChoiceSets     string `json:"choiceSets" mapstructure:"choice_sets"`
	Choices        string `json:"choices" mapstructure:"choices"`
	Prompts        string `json:"prompts" mapstructure:"prompts"`
	Objects        string `json:"objects" mapstructure:"objects"`
	Organizations  string `json:"organizations" mapstructure:"organizations"`
	Restatements   string `json:"restatements" mapstructure:"restatements"`
}

// DefaultTableNames returns the formtab_* table names.
func DefaultTableNames() TableNames {
	return TableNames{
		Forms:          "formtab_forms",
		Attributes:     "formtab_attributes",
		FormViews:      "formtab_form_views",
		AttributeViews: "formtab_attribute_views",
		ChoiceSets:     "formtab_choice_sets",
		Choices:        "formtab_choices",
		Prompts:        "formtab_prompts",
		Objects:        "formtab_objects",
		Organizations:  "formtab_organizations",
		Restatements:   "formtab_restatements",
	}
}

// NullCodecKind selects how or-null values are stored.
type NullCodecKind string

const (
	NullCodecComposite NullCodecKind = "composite"
	NullCodecSplit     NullCodecKind = "split"
)

// CompilerConfig contains schema compiler settings
type CompilerConfig struct {
	MaxIdentifierLength int           `json:"maxIdentifierLength" mapstructure:"max_identifier_length"`
	NullCodec           NullCodecKind `json:"nullCodec" mapstructure:"null_codec"`
	AllocationRetries   int           `json:"allocationRetries" mapstructure:"allocation_retries"`
	DefaultLanguage     string        `json:"defaultLanguage" mapstructure:"default_language"`
	DefaultOwnerID      int64         `json:"defaultOwnerId" mapstructure:"default_owner_id"`
}

// SearchBackend selects the engine that runs search SQL.
type SearchBackend string

const (
	BackendPostgres SearchBackend = "postgres"
	BackendDuckDB   SearchBackend = "duckdb"
)

// QueryConfig contains query execution settings
type QueryConfig struct {
	DefaultTimeout     time.Duration `json:"defaultTimeout" mapstructure:"default_timeout"`
	DefaultPageSize    int           `json:"defaultPageSize" mapstructure:"default_page_size"`
	MaxPageSize        int           `json:"maxPageSize" mapstructure:"max_page_size"`
	HydrationBatchSize int           `json:"hydrationBatchSize" mapstructure:"hydration_batch_size"`
	HydrationWorkers   int           `json:"hydrationWorkers" mapstructure:"hydration_workers"`
	Backend            SearchBackend `json:"backend" mapstructure:"backend"`
	ActiveStatus       string        `json:"activeStatus" mapstructure:"active_status"`
}

// DuckDBConfig contains settings for the DuckDB search backend
type DuckDBConfig struct {
	Path          string        `json:"path" mapstructure:"path"`
	MemoryLimitMB int           `json:"memoryLimitMB" mapstructure:"memory_limit_mb"`
	Threads       int           `json:"threads" mapstructure:"threads"`
	AttachAlias   string        `json:"attachAlias" mapstructure:"attach_alias"`
	PingTimeout   time.Duration `json:"pingTimeout" mapstructure:"ping_timeout"`

	// FallbackToPostgres reruns a search on Postgres when DuckDB fails.
	FallbackToPostgres bool          `json:"fallbackToPostgres" mapstructure:"fallback_to_postgres"`
	FailureThreshold   int           `json:"failureThreshold" mapstructure:"failure_threshold"`
	FailureWindow      time.Duration `json:"failureWindow" mapstructure:"failure_window"`
	OpenDuration       time.Duration `json:"openDuration" mapstructure:"open_duration"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `json:"level" mapstructure:"level"`
	Format      string `json:"format" mapstructure:"format"`
	LogDDL      bool   `json:"logDDL" mapstructure:"log_ddl"`
	LogSearches bool   `json:"logSearches" mapstructure:"log_searches"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "formtab",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxConnections:  25,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Timeout:         30 * time.Second,
			Tables:          DefaultTableNames(),
		},
		Compiler: CompilerConfig{
			MaxIdentifierLength: 63,
			NullCodec:           NullCodecComposite,
			AllocationRetries:   5,
			DefaultLanguage:     "en",
			DefaultOwnerID:      0,
		},
		Query: QueryConfig{
			DefaultTimeout:     30 * time.Second,
			DefaultPageSize:    50,
			MaxPageSize:        500,
			HydrationBatchSize: 80,
			HydrationWorkers:   4,
			Backend:            BackendPostgres,
			ActiveStatus:       "active",
		},
		DuckDB: DuckDBConfig{
			Path:          "",
			MemoryLimitMB: 512,
			Threads:       4,
			AttachAlias:   "pg",
			PingTimeout:   5 * time.Second,

			FallbackToPostgres: true,
			FailureThreshold:   3,
			FailureWindow:      time.Minute,
			OpenDuration:       30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}

	if c.Compiler.MaxIdentifierLength < 16 {
		return &ConfigError{Field: "compiler.maxIdentifierLength", Message: "must be at least 16"}
	}

	switch c.Compiler.NullCodec {
	case NullCodecComposite, NullCodecSplit:
	default:
		return &ConfigError{Field: "compiler.nullCodec", Message: "must be one of composite, split"}
	}

	if c.Compiler.AllocationRetries <= 0 {
		return &ConfigError{Field: "compiler.allocationRetries", Message: "must be greater than 0"}
	}

	if c.Query.DefaultPageSize <= 0 {
		return &ConfigError{Field: "query.defaultPageSize", Message: "must be greater than 0"}
	}

	if c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return &ConfigError{Field: "query.maxPageSize", Message: "must be greater than or equal to defaultPageSize"}
	}

	if c.Query.HydrationBatchSize <= 0 {
		return &ConfigError{Field: "query.hydrationBatchSize", Message: "must be greater than 0"}
	}

	if c.Query.HydrationWorkers <= 0 {
		return &ConfigError{Field: "query.hydrationWorkers", Message: "must be greater than 0"}
	}

	switch c.Query.Backend {
	case BackendPostgres:
	case BackendDuckDB:
		if c.DuckDB.AttachAlias == "" {
			return &ConfigError{Field: "duckdb.attachAlias", Message: "required when query.backend is duckdb"}
		}
		if c.DuckDB.FallbackToPostgres && c.DuckDB.FailureThreshold <= 0 {
			return &ConfigError{Field: "duckdb.failureThreshold", Message: "must be greater than 0 when fallback is enabled"}
		}
	default:
		return &ConfigError{Field: "query.backend", Message: "must be one of postgres, duckdb"}
	}

	return nil
}

// ConnString renders a libpq style connection string for the database settings.
func (d DatabaseConfig) ConnString() string {
	s := "host=" + d.Host + " dbname=" + d.Database + " user=" + d.Username + " sslmode=" + d.SSLMode
	if d.Port > 0 {
		s += " port=" + strconv.Itoa(d.Port)
	}
	if d.Password != "" {
		s += " password=" + d.Password
	}
	return s
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
