package config

// CLIConfig holds settings for the stackgen command line client.
type CLIConfig struct {
	APIBaseURL string
	AuthToken  string
	GitToken   string
}

// LoadCLIConfig reads CLI defaults from the environment.
func LoadCLIConfig() CLIConfig {
	return CLIConfig{
		APIBaseURL: GetString("STACKGEN_API_URL", "http://localhost:4080"),
		AuthToken:  GetString("STACKGEN_AUTH_TOKEN", ""),
		GitToken:   GetString("GITHUB_TOKEN", ""),
	}
}
