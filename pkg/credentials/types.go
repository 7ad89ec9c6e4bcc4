package credentials

// Credentials represents the stored API credentials in credentials.toml.
type Credentials struct {
	Version int              `toml:"version"`
	Google  GoogleCredential `toml:"google"`
}

// GoogleCredential holds the Generative Language API key and the model it
// was last validated against.
type GoogleCredential struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model,omitempty"`
}
