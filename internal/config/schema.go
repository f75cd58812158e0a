package config

// Config is the complete zluda-dump configuration.
type Config struct {
	// Log configures diagnostics.
	Log LogConfig `yaml:"log"`

	// Trace is where call lines go: "stderr", "stdout" or a file path.
	Trace string `yaml:"trace" env:"ZLUDA_DUMP_TRACE"`

	// Catalog is a catalog YAML file. Empty selects the embedded CUDA
	// driver catalog.
	Catalog string `yaml:"catalog,omitempty" env:"ZLUDA_DUMP_CATALOG"`

	// Arch selects the calling convention: auto, x86, x64-windows or
	// x64-sysv.
	Arch string `yaml:"arch" env:"ZLUDA_DUMP_ARCH"`

	// LibCUDA is the driver library the hook command loads.
	LibCUDA string `yaml:"libcuda" env:"ZLUDA_DUMP_LIBCUDA"`

	// Skip lists functions that are never intercepted.
	Skip []string `yaml:"skip,omitempty" env:"ZLUDA_DUMP_SKIP"`
}

// LogConfig configures the diagnostic logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"ZLUDA_DUMP_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"ZLUDA_DUMP_LOG_PRETTY"`
}
