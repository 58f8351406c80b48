// Package config loads workledger settings from a JSON config file with
// environment-variable overrides.
package config

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Predictor PredictorConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type PredictorConfig struct {
	// RetrainThreshold is the fraction of changed rows, relative to the row
	// count at the last training, that forces a full model retrain.
	RetrainThreshold float64
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Predictor: PredictorConfig{
			RetrainThreshold: 0.20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/workledger/config.json, then applies WORKLEDGER_*
// environment variable overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
