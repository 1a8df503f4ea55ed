package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/vinayprograms/agentkit/llm"
)

// MissingEnvError names a required variable that is not set.
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("required environment variable %s is not set", e.Name)
}

// KeySource supplies API keys from outside the environment.
type KeySource interface {
	GetAPIKey(provider string) string
}

// Env is the resolved runtime environment.
type Env struct {
	Model        string
	Provider     string
	APIKey       string
	SearchAPIKey string
}

// ResolveEnv applies MODEL_NAME and collects the API keys. getenv defaults
// to os.Getenv; keys falls back to the credentials file and may be nil.
// Every missing variable is reported.
func (c *Config) ResolveEnv(getenv func(string) string, keys KeySource) (*Env, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	lookup := func(provider, name string) string {
		if v := getenv(name); v != "" {
			return v
		}
		if keys != nil {
			return keys.GetAPIKey(provider)
		}
		return ""
	}

	env := &Env{Model: c.LLM.Model}
	if m := getenv(ModelEnv); m != "" {
		env.Model = m
	}

	var missing []error
	if env.Model == "" {
		missing = append(missing, &MissingEnvError{Name: ModelEnv})
	}

	env.Provider = c.LLM.Provider
	if env.Provider == "" {
		env.Provider = llm.InferProviderFromModel(env.Model)
	}
	if env.Provider == "" {
		env.Provider = DefaultProvider
	}

	keyEnv := c.LLM.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultAPIKeyEnv(env.Provider)
	}
	if keyEnv != "" {
		env.APIKey = lookup(env.Provider, keyEnv)
		if env.APIKey == "" {
			missing = append(missing, &MissingEnvError{Name: keyEnv})
		}
	}

	searchEnv := c.Search.APIKeyEnv
	if searchEnv == "" {
		searchEnv = SearchAPIKeyEnv
	}
	env.SearchAPIKey = lookup("tavily", searchEnv)
	if env.SearchAPIKey == "" {
		missing = append(missing, &MissingEnvError{Name: searchEnv})
	}

	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}
	return env, nil
}
