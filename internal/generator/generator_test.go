package generator

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func lines(content string) []string {
	return strings.Split(content, "\n")
}

func hasLine(content, want string) bool {
	for _, line := range lines(content) {
		if line == want {
			return true
		}
	}
	return false
}

func TestDockerfileDefaults(t *testing.T) {
	artifact, err := GenerateRaw("dockerfile", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("GenerateRaw: %v", err)
	}
	if artifact.FileName != "Dockerfile" {
		t.Fatalf("unexpected file name %q", artifact.FileName)
	}
	if !strings.Contains(artifact.Content, "FROM node:22-alpine") {
		t.Fatalf("missing default base image:\n%s", artifact.Content)
	}
	if !strings.Contains(artifact.Content, "EXPOSE 3000") {
		t.Fatalf("missing default port:\n%s", artifact.Content)
	}
	if artifact.Kind != string(KindDockerfile) {
		t.Fatalf("unexpected kind %q", artifact.Kind)
	}
}

func TestDockerfileAcceptsStringPort(t *testing.T) {
	artifact, err := GenerateRaw("dockerfile", json.RawMessage(`{"nodeVersion":"20","port":"8080"}`))
	if err != nil {
		t.Fatalf("GenerateRaw: %v", err)
	}
	if !hasLine(artifact.Content, "FROM node:20-alpine") || !hasLine(artifact.Content, "EXPOSE 8080") {
		t.Fatalf("options not applied:\n%s", artifact.Content)
	}
}

func TestDockerfileEmptyStringsUseDefaults(t *testing.T) {
	artifact, err := GenerateRaw("dockerfile", json.RawMessage(`{"nodeVersion":"","port":""}`))
	if err != nil {
		t.Fatalf("GenerateRaw: %v", err)
	}
	if !hasLine(artifact.Content, "FROM node:22-alpine") || !hasLine(artifact.Content, "EXPOSE 3000") {
		t.Fatalf("defaults not applied:\n%s", artifact.Content)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	inputs := map[string]string{
		"dockerfile":     `{"port":4000}`,
		"docker-compose": `{"dbType":"mysql","dbName":"shop"}`,
		"prisma":         `{"tables":[{"name":"User","fields":[{"name":"email","type":"String"}]},{"name":"Post","fields":[{"name":"title","type":"String","required":false}]}]}`,
		"sequelize":      `{"tables":[{"name":"User","fields":[{"name":"email","type":"String"}]}]}`,
	}
	for kind, raw := range inputs {
		first, err := GenerateRaw(kind, json.RawMessage(raw))
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		for i := 0; i < 5; i++ {
			again, err := GenerateRaw(kind, json.RawMessage(raw))
			if err != nil {
				t.Fatalf("%s: %v", kind, err)
			}
			if again != first {
				t.Fatalf("%s: output differs between runs", kind)
			}
		}
	}
}

func TestPrismaRequiredFields(t *testing.T) {
	raw := `{"tables":[{"name":"User","fields":[
		{"name":"email","type":"String","required":true},
		{"name":"nickname","type":"String","required":false},
		{"name":"age","type":"Int"}
	]}]}`
	artifact, err := GenerateRaw("prisma", json.RawMessage(raw))
	if err != nil {
		t.Fatalf("GenerateRaw: %v", err)
	}
	if artifact.FileName != "prisma/schema.prisma" {
		t.Fatalf("unexpected file name %q", artifact.FileName)
	}
	if !strings.Contains(artifact.Content, "model User {") {
		t.Fatalf("missing model block:\n%s", artifact.Content)
	}
	for _, want := range []string{"  email String", "  nickname String?", "  age Int", "  createdAt DateTime @default(now())", "  updatedAt DateTime @updatedAt"} {
		if !hasLine(artifact.Content, want) {
			t.Fatalf("missing line %q:\n%s", want, artifact.Content)
		}
	}
	if strings.Contains(artifact.Content, "email String?") {
		t.Fatalf("required field rendered optional")
	}
}

func TestPrismaTypedOptions(t *testing.T) {
	artifact, err := Generate(PrismaOptions{
		Provider: "mongodb",
		Tables:   []Table{{Name: "Note", Fields: []Field{{Name: "body", Type: "String", Required: false}}}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(artifact.Content, `provider = "mongodb"`) || !strings.Contains(artifact.Content, `@map("_id")`) {
		t.Fatalf("mongodb provider not applied:\n%s", artifact.Content)
	}
	if !hasLine(artifact.Content, "  body String?") {
		t.Fatalf("optional field missing '?':\n%s", artifact.Content)
	}
}

func TestPrismaWithoutTables(t *testing.T) {
	artifact, err := GenerateRaw("prisma", nil)
	if err != nil {
		t.Fatalf("GenerateRaw: %v", err)
	}
	if strings.Contains(artifact.Content, "model ") {
		t.Fatalf("unexpected model block:\n%s", artifact.Content)
	}
	if !strings.Contains(artifact.Content, `provider = "postgresql"`) {
		t.Fatalf("default provider missing:\n%s", artifact.Content)
	}
}

func TestSequelizeModels(t *testing.T) {
	raw := `{"tables":[
		{"name":"User","fields":[{"name":"email","type":"string","required":true},{"name":"bio","type":"text","required":false}]},
		{"name":"Post","fields":[{"name":"title","type":"String"}]}
	]}`
	artifact, err := GenerateRaw("sequelize", json.RawMessage(raw))
	if err != nil {
		t.Fatalf("GenerateRaw: %v", err)
	}
	if artifact.FileName != "models/index.js" {
		t.Fatalf("unexpected file name %q", artifact.FileName)
	}
	content := artifact.Content
	for _, want := range []string{
		"  const User = sequelize.define('User', {",
		"  const Post = sequelize.define('Post', {",
		"      type: DataTypes.STRING,",
		"      type: DataTypes.TEXT,",
		"  return { User, Post };",
	} {
		if !hasLine(content, want) {
			t.Fatalf("missing line %q:\n%s", want, content)
		}
	}
	emailBlock := content[strings.Index(content, "email: {"):strings.Index(content, "bio: {")]
	if !strings.Contains(emailBlock, "allowNull: false") {
		t.Fatalf("required field should not allow null:\n%s", emailBlock)
	}
	bioBlock := content[strings.Index(content, "bio: {"):]
	if !strings.Contains(bioBlock[:strings.Index(bioBlock, "},")], "allowNull: true") {
		t.Fatalf("optional field should allow null:\n%s", bioBlock)
	}
}

type composeFile struct {
	Services map[string]struct {
		Image       string            `yaml:"image"`
		Build       string            `yaml:"build"`
		Ports       []string          `yaml:"ports"`
		Environment map[string]string `yaml:"environment"`
		DependsOn   []string          `yaml:"depends_on"`
	} `yaml:"services"`
	Volumes map[string]any `yaml:"volumes"`
}

func TestComposeDefaultsParseAsYAML(t *testing.T) {
	artifact, err := GenerateRaw("docker-compose", nil)
	if err != nil {
		t.Fatalf("GenerateRaw: %v", err)
	}
	if artifact.FileName != "docker-compose.yml" {
		t.Fatalf("unexpected file name %q", artifact.FileName)
	}
	var doc composeFile
	if err := yaml.Unmarshal([]byte(artifact.Content), &doc); err != nil {
		t.Fatalf("compose output is not valid YAML: %v\n%s", err, artifact.Content)
	}
	db, ok := doc.Services["db"]
	if !ok {
		t.Fatalf("db service missing")
	}
	if db.Image != "postgres:16-alpine" {
		t.Fatalf("unexpected db image %q", db.Image)
	}
	if db.Environment["POSTGRES_DB"] != "mydb" || db.Environment["POSTGRES_USER"] != "user" || db.Environment["POSTGRES_PASSWORD"] != "password" {
		t.Fatalf("unexpected db environment %v", db.Environment)
	}
	app := doc.Services["app"]
	if len(app.DependsOn) != 1 || app.DependsOn[0] != "db" {
		t.Fatalf("app should depend on db, got %v", app.DependsOn)
	}
	if app.Environment["DATABASE_URL"] != "postgresql://user:password@db:5432/mydb" {
		t.Fatalf("unexpected DATABASE_URL %q", app.Environment["DATABASE_URL"])
	}
	if _, ok := doc.Volumes["db-data"]; !ok {
		t.Fatalf("named volume missing")
	}
}

func TestComposeMySQL(t *testing.T) {
	artifact, err := Generate(ComposeOptions{DBType: "mysql", DBName: "shop", DBUser: "admin", DBPassword: "p@ss", AppPort: 8080})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var doc composeFile
	if err := yaml.Unmarshal([]byte(artifact.Content), &doc); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	db := doc.Services["db"]
	if db.Environment["MYSQL_DATABASE"] != "shop" || db.Environment["MYSQL_USER"] != "admin" {
		t.Fatalf("unexpected mysql env %v", db.Environment)
	}
	if got := doc.Services["app"].Environment["DATABASE_URL"]; got != "mysql://admin:p%40ss@db:3306/shop" {
		t.Fatalf("unexpected DATABASE_URL %q", got)
	}
	if ports := doc.Services["app"].Ports; len(ports) != 1 || ports[0] != "8080:8080" {
		t.Fatalf("unexpected app ports %v", ports)
	}
}

func TestUnsupportedKind(t *testing.T) {
	_, err := GenerateRaw("helm-chart", nil)
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("expected ErrUnsupportedKind, got %v", err)
	}
	if _, err := DecodeOptions(Kind("terraform"), nil); !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("expected ErrUnsupportedKind from DecodeOptions, got %v", err)
	}
}

func TestParseKindNormalizes(t *testing.T) {
	kind, err := ParseKind("  Docker-Compose ")
	if err != nil {
		t.Fatalf("ParseKind: %v", err)
	}
	if kind != KindDockerCompose {
		t.Fatalf("unexpected kind %q", kind)
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		kind string
		raw  string
	}{
		{"port out of range", "dockerfile", `{"port":70000}`},
		{"port not numeric", "dockerfile", `{"port":"abc"}`},
		{"node version injection", "dockerfile", `{"nodeVersion":"22\nRUN rm -rf /"}`},
		{"unknown database", "docker-compose", `{"dbType":"oracle"}`},
		{"quoted password", "docker-compose", `{"dbPassword":"a\"b"}`},
		{"table name injection", "prisma", `{"tables":[{"name":"User {","fields":[]}]}`},
		{"field type injection", "sequelize", `{"tables":[{"name":"User","fields":[{"name":"x","type":"STRING, evil"}]}]}`},
		{"reserved field", "prisma", `{"tables":[{"name":"User","fields":[{"name":"id","type":"Int"}]}]}`},
		{"duplicate table", "sequelize", `{"tables":[{"name":"User","fields":[]},{"name":"User","fields":[]}]}`},
		{"tables wrong shape", "prisma", `{"tables":"User"}`},
		{"duplicate field", "prisma", `{"tables":[{"name":"User","fields":[{"name":"e","type":"String"},{"name":"e","type":"Int"}]}]}`},
		{"duplicate sequelize field", "sequelize", `{"tables":[{"name":"User","fields":[{"name":"e","type":"string"},{"name":"e","type":"integer"}]}]}`},
		{"database name with slash", "docker-compose", `{"dbName":"a/b?c"}`},
		{"mysql root user", "docker-compose", `{"dbType":"mysql","dbUser":"root"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GenerateRaw(tc.kind, json.RawMessage(tc.raw))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestDockerfileMatchesTemplate(t *testing.T) {
	artifact, err := GenerateRaw("dockerfile", json.RawMessage(`{"port":8080}`))
	if err != nil {
		t.Fatalf("GenerateRaw: %v", err)
	}
	want := "FROM node:22-alpine\n" +
		"WORKDIR /app\n" +
		"COPY package*.json ./\n" +
		"RUN npm install\n" +
		"COPY . .\n" +
		"RUN npm run build\n" +
		"EXPOSE 8080\n" +
		"CMD [\"npm\", \"start\"]\n"
	if artifact.Content != want {
		t.Fatalf("unexpected dockerfile:\n%s", artifact.Content)
	}
}

func TestComposeRootUserAllowedForPostgres(t *testing.T) {
	if _, err := GenerateRaw("docker-compose", json.RawMessage(`{"dbUser":"root","dbName":"shop-db_1"}`)); err != nil {
		t.Fatalf("expected postgres root user to be accepted: %v", err)
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	cases := []struct {
		name  string
		kind  string
		raw   string
		field string
	}{
		{"string expected", "dockerfile", `{"nodeVersion":22}`, "nodeVersion"},
		{"nested field", "prisma", `{"tables":[{"name":"User","fields":[{"name":1}]}]}`, "tables.fields.name"},
		{"duplicate field", "prisma", `{"tables":[{"name":"User","fields":[{"name":"e","type":"String"},{"name":"e","type":"Int"}]}]}`, "tables[0].fields[1].name"},
		{"malformed", "sequelize", `{"tables":[`, "options"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GenerateRaw(tc.kind, json.RawMessage(tc.raw))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q (%v)", tc.field, verr.Field, err)
			}
			if strings.Contains(verr.Message, "struct") || strings.Contains(verr.Message, "json:") {
				t.Fatalf("message exposes Go types: %q", verr.Message)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	for _, kind := range Kinds() {
		opts, err := DefaultOptions(kind)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if opts.Kind() != kind {
			t.Fatalf("kind mismatch: %s vs %s", opts.Kind(), kind)
		}
		if _, err := Generate(opts); err != nil {
			t.Fatalf("%s: default options should render: %v", kind, err)
		}
	}
	if _, err := Generate(nil); err == nil {
		t.Fatalf("expected error for nil options")
	}
}
