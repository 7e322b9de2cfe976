package log

// Config controls the global logger.
type Config struct {
	Level string      `mapstructure:"level"`
	File  *FileOutput `mapstructure:"file,omitempty"`
}

// FileOutput enables an additional rotated log file next to console output.
type FileOutput struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns the configuration used when Init is never called
// explicitly: info level, console only.
func DefaultConfig() *Config {
	return &Config{Level: "info"}
}
