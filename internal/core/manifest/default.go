package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultManifest is the stack manifest `stackup init` scaffolds: an
// application service built from the local build descriptor with the DEV
// toggle on, wired to a PostgreSQL service. The app's command is generated
// from DefaultStartup so the descriptor and the sequence cannot drift.
var DefaultManifest = fmt.Sprintf(defaultManifestTemplate, yamlFlowSeq(DefaultStartup(8000).Render()))

const defaultManifestTemplate = `version: "3.9"

services:
  app:
    build:
      context: .
      args:
        - DEV=true
    ports:
      - "8000:8000"
    volumes:
      - ./app:/app
      - dev-static-data:/vol/web
    command: %s
    environment:
      - DB_HOST=db
      - DB_NAME=devdb
      - DB_USER=devuser
      - DB_PASS=changeme
    depends_on:
      - db

  db:
    image: postgres:13-alpine
    volumes:
      - dev-db-data:/var/lib/postgresql/data
    environment:
      - POSTGRES_DB=devdb
      - POSTGRES_USER=devuser
      - POSTGRES_PASSWORD=changeme

volumes:
  dev-db-data:
  dev-static-data:
`

// yamlFlowSeq renders a command as a YAML flow sequence of quoted strings.
func yamlFlowSeq(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = strconv.Quote(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
