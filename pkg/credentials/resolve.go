package credentials

import "os"

// ResolveKey returns the API key for a provider following the resolution
// order: explicit value, stored credential, environment variable. An empty
// result means no key is available anywhere; providers that do not need
// keys (e.g. ollama) simply get the empty string.
func (m *Manager) ResolveKey(provider, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	key, err := m.GetKey(provider)
	if err != nil {
		return "", err
	}
	if key != "" {
		return key, nil
	}

	if env := EnvVarForProvider(provider); env != "" {
		return os.Getenv(env), nil
	}

	return "", nil
}
