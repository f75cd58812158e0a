package config

import "runtime"

// DefaultLibCUDA returns the driver library name for the host platform.
func DefaultLibCUDA() string {
	if runtime.GOOS == "windows" {
		return "nvcuda.dll"
	}
	return "libcuda.so.1"
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Trace:   "stderr",
		Arch:    "auto",
		LibCUDA: DefaultLibCUDA(),
	}
}
