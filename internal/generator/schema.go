package generator

import (
	"strings"
)

// Columns every generated model carries; user tables may not redefine them.
var reservedFields = map[string]struct{}{
	"id":        {},
	"createdAt": {},
	"updatedAt": {},
}

func renderPrisma(o PrismaOptions) string {
	var b strings.Builder
	b.WriteString("datasource db {\n")
	b.WriteString("  provider = \"" + o.Provider + "\"\n")
	b.WriteString("  url      = env(\"DATABASE_URL\")\n")
	b.WriteString("}\n\n")
	b.WriteString("generator client {\n")
	b.WriteString("  provider = \"prisma-client-js\"\n")
	b.WriteString("}\n")
	for _, table := range o.Tables {
		b.WriteString("\nmodel " + table.Name + " {\n")
		if o.Provider == "mongodb" {
			b.WriteString("  id String @id @default(auto()) @map(\"_id\") @db.ObjectId\n")
		} else {
			b.WriteString("  id Int @id @default(autoincrement())\n")
		}
		for _, field := range table.Fields {
			b.WriteString("  " + field.Name + " " + field.Type)
			if !field.Required {
				b.WriteString("?")
			}
			b.WriteString("\n")
		}
		b.WriteString("  createdAt DateTime @default(now())\n")
		b.WriteString("  updatedAt DateTime @updatedAt\n")
		b.WriteString("}\n")
	}
	return b.String()
}

func renderSequelize(o SequelizeOptions) string {
	var b strings.Builder
	b.WriteString("'use strict';\n\n")
	b.WriteString("const { DataTypes } = require('sequelize');\n\n")
	b.WriteString("module.exports = (sequelize) => {\n")
	names := make([]string, 0, len(o.Tables))
	for _, table := range o.Tables {
		names = append(names, table.Name)
		b.WriteString("  const " + table.Name + " = sequelize.define('" + table.Name + "', {\n")
		for _, field := range table.Fields {
			allowNull := "true"
			if field.Required {
				allowNull = "false"
			}
			b.WriteString("    " + field.Name + ": {\n")
			b.WriteString("      type: DataTypes." + strings.ToUpper(field.Type) + ",\n")
			b.WriteString("      allowNull: " + allowNull + ",\n")
			b.WriteString("    },\n")
		}
		b.WriteString("  }, {\n")
		b.WriteString("    timestamps: true,\n")
		b.WriteString("  });\n\n")
	}
	if len(names) == 0 {
		b.WriteString("  return {};\n")
	} else {
		b.WriteString("  return { " + strings.Join(names, ", ") + " };\n")
	}
	b.WriteString("};\n")
	return b.String()
}
