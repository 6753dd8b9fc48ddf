package domain

// Artifact is a rendered configuration file ready to be written or published.
type Artifact struct {
	Kind     string `json:"kind"`
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}
