package scanning

// Credentials for private repositories. Either Username/Password or a
// personal access token. Never persisted.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"pat,omitempty"`
}

func (c *Credentials) IsZero() bool {
	return c == nil || (c.Username == "" && c.Password == "" && c.Token == "")
}

// BasicAuth returns the username/password pair sent to the git server.
// A token travels as the username with an empty password.
func (c *Credentials) BasicAuth() (string, string, bool) {
	switch {
	case c.IsZero():
		return "", "", false
	case c.Token != "":
		return c.Token, "", true
	default:
		return c.Username, c.Password, true
	}
}
