package identity

import (
	"github.com/spf13/viper"
)

// Source resolves configuration values by key.
type Source interface {
	// Lookup returns the value for key and whether it was set to a non-empty
	// value.
	Lookup(key string) (string, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(key string) (string, bool)

// Lookup calls f.
func (f SourceFunc) Lookup(key string) (string, bool) {
	return f(key)
}

// MapSource is a Source backed by a map.
type MapSource map[string]string

// Lookup returns the non-empty value stored under key.
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok && v != ""
}

// EnvSource reads values from the process environment through viper.
type EnvSource struct {
	v *viper.Viper
}

// NewEnvSource returns a Source bound to the given environment variables.
// With no keys it binds the identity keys plus any key requested later.
// Empty variables are treated as unset.
func NewEnvSource(keys ...string) *EnvSource {
	v := viper.New()
	v.AllowEmptyEnv(false)
	if len(keys) == 0 {
		keys = []string{KeyEnvironment, KeyApplication, KeyImageName, KeyImageTag, KeyCommit}
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()
	return &EnvSource{v: v}
}

// Lookup returns the value of the environment variable key.
func (s *EnvSource) Lookup(key string) (string, bool) {
	if !s.v.IsSet(key) {
		return "", false
	}
	value := s.v.GetString(key)
	return value, value != ""
}

// Load reads the identity keys from src and builds a BuildIdentity.
func Load(src Source) (BuildIdentity, error) {
	get := func(key string) string {
		v, _ := src.Lookup(key)
		return v
	}

	return New(Inputs{
		Environment: get(KeyEnvironment),
		Application: get(KeyApplication),
		ImageName:   get(KeyImageName),
		ImageTag:    get(KeyImageTag),
		Commit:      get(KeyCommit),
	})
}
