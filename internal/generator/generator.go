// Package generator renders boilerplate configuration files from typed options.
//
// Rendering is a pure function of the options: the same input always yields
// byte-identical output, and absent optional values fall back to the defaults
// exported by this package.
package generator

import (
	"encoding/json"

	"github.com/splax/stackgen/internal/domain"
)

// Output file names per kind.
const (
	FileDockerfile    = "Dockerfile"
	FileDockerCompose = "docker-compose.yml"
	FilePrisma        = "prisma/schema.prisma"
	FileSequelize     = "models/index.js"
)

// Generate renders the artifact described by opts.
func Generate(opts Options) (domain.Artifact, error) {
	if opts == nil {
		return domain.Artifact{}, invalid("options", "options are required")
	}
	if err := opts.validate(); err != nil {
		return domain.Artifact{}, err
	}
	artifact := domain.Artifact{Kind: string(opts.Kind())}
	switch o := opts.(type) {
	case DockerfileOptions:
		artifact.FileName, artifact.Content = FileDockerfile, renderDockerfile(o)
	case ComposeOptions:
		artifact.FileName, artifact.Content = FileDockerCompose, renderCompose(o)
	case PrismaOptions:
		artifact.FileName, artifact.Content = FilePrisma, renderPrisma(o)
	case SequelizeOptions:
		artifact.FileName, artifact.Content = FileSequelize, renderSequelize(o)
	default:
		return domain.Artifact{}, ErrUnsupportedKind
	}
	return artifact, nil
}

// GenerateRaw parses kind, decodes the JSON option bag and renders the artifact.
func GenerateRaw(kind string, raw json.RawMessage) (domain.Artifact, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return domain.Artifact{}, err
	}
	opts, err := DecodeOptions(k, raw)
	if err != nil {
		return domain.Artifact{}, err
	}
	return Generate(opts)
}
