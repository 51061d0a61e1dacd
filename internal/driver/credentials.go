package driver

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Credentials is the SSO login pair. A nil *Credentials means manual
// login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Environment fallbacks for credentials.
const (
	EnvUsername = "GROUNDCHECK_USERNAME"
	EnvPassword = "GROUNDCHECK_PASSWORD"
)

var credentialPaths = []string{
	filepath.Join("config", "credentials.json"),
	"credentials.json",
}

// LoadCredentials resolves credentials from the first readable
// credentials.json, falling back to the environment. An explicit
// non-empty path is tried before the default locations. Returns nil with
// no error when neither source is set; callers treat that as manual
// login.
func LoadCredentials(explicit string) (*Credentials, error) {
	paths := credentialPaths
	if explicit != "" {
		paths = append([]string{explicit}, paths...)
	}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "driver: read %s", path)
		}
		var c Credentials
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, eris.Wrapf(err, "driver: parse %s", path)
		}
		if c.Username == "" || c.Password == "" {
			return nil, eris.Errorf("driver: %s is missing username or password", path)
		}
		return &c, nil
	}

	user, pass := os.Getenv(EnvUsername), os.Getenv(EnvPassword)
	if user != "" && pass != "" {
		return &Credentials{Username: user, Password: pass}, nil
	}
	return nil, nil
}
