package generator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Defaults applied when an option is absent.
const (
	DefaultNodeVersion    = "22"
	DefaultPort           = 3000
	DefaultDBType         = "postgres"
	DefaultDBName         = "mydb"
	DefaultDBUser         = "user"
	DefaultDBPassword     = "password"
	DefaultPrismaProvider = "postgresql"
)

var (
	identifierPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	nodeVersionPattern = regexp.MustCompile(`^[0-9A-Za-z._-]+$`)
	dbNamePattern      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Options is the typed option record of one artifact kind.
type Options interface {
	Kind() Kind
	validate() error
}

// DockerfileOptions parameterizes the Node.js Dockerfile.
type DockerfileOptions struct {
	NodeVersion string
	Port        int
}

// Kind implements Options.
func (DockerfileOptions) Kind() Kind { return KindDockerfile }

func (o DockerfileOptions) validate() error {
	if !nodeVersionPattern.MatchString(o.NodeVersion) {
		return invalid("nodeVersion", "invalid node version %q", o.NodeVersion)
	}
	return validatePort("port", o.Port)
}

// ComposeOptions parameterizes docker-compose.yml.
type ComposeOptions struct {
	DBType     string
	DBName     string
	DBUser     string
	DBPassword string
	AppPort    int
}

// Kind implements Options.
func (ComposeOptions) Kind() Kind { return KindDockerCompose }

func (o ComposeOptions) validate() error {
	if _, ok := databases[o.DBType]; !ok {
		return invalid("dbType", "unsupported database %q", o.DBType)
	}
	if !dbNamePattern.MatchString(o.DBName) {
		return invalid("dbName", "invalid database name %q", o.DBName)
	}
	// The mysql image creates root itself and refuses MYSQL_USER=root.
	if o.DBType == "mysql" && strings.EqualFold(o.DBUser, "root") {
		return invalid("dbUser", "mysql reserves the root user; choose another name")
	}
	values := []struct{ field, value string }{
		{"dbUser", o.DBUser},
		{"dbPassword", o.DBPassword},
	}
	for _, v := range values {
		if strings.ContainsAny(v.value, "\n\r\"\\") {
			return invalid(v.field, "must not contain quotes, backslashes or line breaks")
		}
	}
	return validatePort("appPort", o.AppPort)
}

// Field is one column of a Table.
type Field struct {
	Name     string
	Type     string
	Required bool
}

// Table is one model of a schema artifact.
type Table struct {
	Name   string
	Fields []Field
}

// PrismaOptions parameterizes prisma/schema.prisma.
type PrismaOptions struct {
	Provider string
	Tables   []Table
}

// Kind implements Options.
func (PrismaOptions) Kind() Kind { return KindPrisma }

func (o PrismaOptions) validate() error {
	if !identifierPattern.MatchString(o.Provider) {
		return invalid("provider", "invalid provider %q", o.Provider)
	}
	return validateTables(o.Tables)
}

// SequelizeOptions parameterizes models/index.js.
type SequelizeOptions struct {
	Tables []Table
}

// Kind implements Options.
func (SequelizeOptions) Kind() Kind { return KindSequelize }

func (o SequelizeOptions) validate() error {
	return validateTables(o.Tables)
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return invalid(field, "port %d out of range", port)
	}
	return nil
}

func validateTables(tables []Table) error {
	seen := make(map[string]struct{}, len(tables))
	for i, table := range tables {
		if !identifierPattern.MatchString(table.Name) {
			return invalid(fmt.Sprintf("tables[%d].name", i), "invalid table name %q", table.Name)
		}
		if _, dup := seen[table.Name]; dup {
			return invalid(fmt.Sprintf("tables[%d].name", i), "duplicate table %q", table.Name)
		}
		seen[table.Name] = struct{}{}
		fields := make(map[string]struct{}, len(table.Fields))
		for j, field := range table.Fields {
			path := fmt.Sprintf("tables[%d].fields[%d]", i, j)
			if !identifierPattern.MatchString(field.Name) {
				return invalid(path+".name", "invalid field name %q", field.Name)
			}
			if _, dup := fields[field.Name]; dup {
				return invalid(path+".name", "duplicate field %q in table %q", field.Name, table.Name)
			}
			fields[field.Name] = struct{}{}
			if _, reserved := reservedFields[field.Name]; reserved {
				return invalid(path+".name", "field %q is generated automatically", field.Name)
			}
			if !identifierPattern.MatchString(field.Type) {
				return invalid(path+".type", "invalid field type %q", field.Type)
			}
		}
	}
	return nil
}

// DefaultOptions returns the option record of kind with every default applied.
func DefaultOptions(kind Kind) (Options, error) {
	return DecodeOptions(kind, nil)
}

// DecodeOptions builds the typed option record for kind from a JSON object.
// Absent or empty input yields the defaults.
func DecodeOptions(kind Kind, raw json.RawMessage) (Options, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	switch kind {
	case KindDockerfile:
		var in struct {
			NodeVersion string   `json:"nodeVersion"`
			Port        flexPort `json:"port"`
		}
		if err := unmarshalOptions(trimmed, &in); err != nil {
			return nil, err
		}
		return DockerfileOptions{
			NodeVersion: orDefault(in.NodeVersion, DefaultNodeVersion),
			Port:        in.Port.or(DefaultPort),
		}, nil
	case KindDockerCompose:
		var in struct {
			DBType     string   `json:"dbType"`
			DBName     string   `json:"dbName"`
			DBUser     string   `json:"dbUser"`
			DBPassword string   `json:"dbPassword"`
			AppPort    flexPort `json:"appPort"`
			Port       flexPort `json:"port"`
		}
		if err := unmarshalOptions(trimmed, &in); err != nil {
			return nil, err
		}
		appPort := in.AppPort.or(in.Port.or(DefaultPort))
		return ComposeOptions{
			DBType:     strings.ToLower(orDefault(in.DBType, DefaultDBType)),
			DBName:     orDefault(in.DBName, DefaultDBName),
			DBUser:     orDefault(in.DBUser, DefaultDBUser),
			DBPassword: orDefault(in.DBPassword, DefaultDBPassword),
			AppPort:    appPort,
		}, nil
	case KindPrisma:
		var in struct {
			Provider string      `json:"provider"`
			Tables   []tableJSON `json:"tables"`
		}
		if err := unmarshalOptions(trimmed, &in); err != nil {
			return nil, err
		}
		return PrismaOptions{
			Provider: orDefault(in.Provider, DefaultPrismaProvider),
			Tables:   convertTables(in.Tables),
		}, nil
	case KindSequelize:
		var in struct {
			Tables []tableJSON `json:"tables"`
		}
		if err := unmarshalOptions(trimmed, &in); err != nil {
			return nil, err
		}
		return SequelizeOptions{Tables: convertTables(in.Tables)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, string(kind))
	}
}

type tableJSON struct {
	Name   string      `json:"name"`
	Fields []fieldJSON `json:"fields"`
}

type fieldJSON struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required *bool  `json:"required"`
}

func convertTables(in []tableJSON) []Table {
	tables := make([]Table, 0, len(in))
	for _, t := range in {
		table := Table{Name: strings.TrimSpace(t.Name), Fields: make([]Field, 0, len(t.Fields))}
		for _, f := range t.Fields {
			required := true
			if f.Required != nil {
				required = *f.Required
			}
			table.Fields = append(table.Fields, Field{
				Name:     strings.TrimSpace(f.Name),
				Type:     strings.TrimSpace(f.Type),
				Required: required,
			})
		}
		tables = append(tables, table)
	}
	return tables
}

// unmarshalOptions tolerates unknown keys since forms share one option bag
// between kinds. Values of the wrong shape are rejected by field name.
func unmarshalOptions(raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "options"
		}
		return invalid(field, "expected %s, got %s", jsonKind(typeErr.Type), typeErr.Value)
	case errors.As(err, &syntaxErr):
		return invalid("options", "malformed JSON at offset %d", syntaxErr.Offset)
	default:
		return invalid("options", "%s", err.Error())
	}
}

// jsonKind names t the way a JSON author would.
func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Pointer:
		return jsonKind(t.Elem())
	default:
		return "object"
	}
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// flexPort accepts 3000, "3000" or "" in JSON.
type flexPort struct {
	value int
	set   bool
}

func (p *flexPort) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
		if text == "" {
			return nil
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("port must be an integer, got %s", string(data))
	}
	p.value, p.set = n, true
	return nil
}

func (p flexPort) or(fallback int) int {
	if p.set {
		return p.value
	}
	return fallback
}
