package generator

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type database struct {
	image     string
	port      int
	dataDir   string
	scheme    string
	urlSuffix string
	env       func(o ComposeOptions) [][2]string
}

var databases = map[string]database{
	"postgres": {
		image:   "postgres:16-alpine",
		port:    5432,
		dataDir: "/var/lib/postgresql/data",
		scheme:  "postgresql",
		env: func(o ComposeOptions) [][2]string {
			return [][2]string{
				{"POSTGRES_DB", o.DBName},
				{"POSTGRES_USER", o.DBUser},
				{"POSTGRES_PASSWORD", o.DBPassword},
			}
		},
	},
	"mysql": {
		image:   "mysql:8.4",
		port:    3306,
		dataDir: "/var/lib/mysql",
		scheme:  "mysql",
		env: func(o ComposeOptions) [][2]string {
			return [][2]string{
				{"MYSQL_DATABASE", o.DBName},
				{"MYSQL_USER", o.DBUser},
				{"MYSQL_PASSWORD", o.DBPassword},
				{"MYSQL_ROOT_PASSWORD", o.DBPassword},
			}
		},
	},
	"mongodb": {
		image:     "mongo:7",
		port:      27017,
		dataDir:   "/data/db",
		scheme:    "mongodb",
		urlSuffix: "?authSource=admin",
		env: func(o ComposeOptions) [][2]string {
			return [][2]string{
				{"MONGO_INITDB_DATABASE", o.DBName},
				{"MONGO_INITDB_ROOT_USERNAME", o.DBUser},
				{"MONGO_INITDB_ROOT_PASSWORD", o.DBPassword},
			}
		},
	},
}

func renderDockerfile(o DockerfileOptions) string {
	port := strconv.Itoa(o.Port)
	var b strings.Builder
	b.WriteString("FROM node:" + o.NodeVersion + "-alpine\n")
	b.WriteString("WORKDIR /app\n")
	b.WriteString("COPY package*.json ./\n")
	b.WriteString("RUN npm install\n")
	b.WriteString("COPY . .\n")
	b.WriteString("RUN npm run build\n")
	b.WriteString("EXPOSE " + port + "\n")
	b.WriteString("CMD [\"npm\", \"start\"]\n")
	return b.String()
}

func renderCompose(o ComposeOptions) string {
	db := databases[o.DBType]
	dsn := url.URL{
		Scheme: db.scheme,
		User:   url.UserPassword(o.DBUser, o.DBPassword),
		Host:   fmt.Sprintf("db:%d", db.port),
		Path:   "/" + o.DBName,
	}
	appPort := strconv.Itoa(o.AppPort)
	dbPort := strconv.Itoa(db.port)

	var b strings.Builder
	b.WriteString("services:\n")
	b.WriteString("  app:\n")
	b.WriteString("    build: .\n")
	b.WriteString("    restart: unless-stopped\n")
	b.WriteString("    ports:\n")
	b.WriteString("      - \"" + appPort + ":" + appPort + "\"\n")
	b.WriteString("    environment:\n")
	b.WriteString("      PORT: \"" + appPort + "\"\n")
	b.WriteString("      DATABASE_URL: " + quote(dsn.String()+db.urlSuffix) + "\n")
	b.WriteString("    depends_on:\n")
	b.WriteString("      - db\n")
	b.WriteString("  db:\n")
	b.WriteString("    image: " + db.image + "\n")
	b.WriteString("    restart: unless-stopped\n")
	b.WriteString("    environment:\n")
	for _, kv := range db.env(o) {
		b.WriteString("      " + kv[0] + ": " + quote(kv[1]) + "\n")
	}
	b.WriteString("    ports:\n")
	b.WriteString("      - \"" + dbPort + ":" + dbPort + "\"\n")
	b.WriteString("    volumes:\n")
	b.WriteString("      - db-data:" + db.dataDir + "\n")
	b.WriteString("\n")
	b.WriteString("volumes:\n")
	b.WriteString("  db-data:\n")
	return b.String()
}

// quote wraps a value validated to contain no quotes, backslashes or newlines.
func quote(value string) string {
	return "\"" + value + "\""
}
