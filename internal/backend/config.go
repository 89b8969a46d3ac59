package backend

import (
	"fmt"
	"strings"

	"kvitto/internal/config"
	"kvitto/internal/core"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("%w: app config is nil", core.ErrConfig)
	}

	backendType := BackendType(appConfig.SourceBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("%w: invalid source backend in config: %s", core.ErrConfig, appConfig.SourceBackend)
	}

	return Config{
		Type: backendType,

		BaseURL:           appConfig.BaseURL,
		Token:             appConfig.APIToken,
		ActorKey:          appConfig.ActorKey,
		RequestsPerSecond: appConfig.RequestsPerSecond,
		RequestTimeout:    appConfig.RequestTimeout,

		SeedDir: appConfig.SeedDir,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: invalid backend type %q, want one of %s",
			core.ErrConfig, c.Type, strings.Join(GetBackendTypeStrings(), ", "))
	}

	switch c.Type {
	case KivraBackend:
		if c.Token == "" || c.ActorKey == "" {
			return fmt.Errorf("%w: KIVRA_API_TOKEN and KIVRA_ACTOR_KEY are required for the kivra source", core.ErrConfig)
		}
	case MemoryBackend:
		// SeedDir defaults to "data" when empty
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{KivraBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return names
}
