package trails

import (
	"context"
	"database/sql"
)

// Source supplies a full trail corpus on demand.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
	String() string
}

// FileSource loads a YAML or JSON file with LoadFile.
type FileSource struct {
	Path string
}

// Load reads the file.
func (s FileSource) Load(context.Context) ([]Record, error) {
	return LoadFile(s.Path)
}

func (s FileSource) String() string {
	return "file:" + s.Path
}

// SQLiteSource loads the trails table with LoadSQLite.
type SQLiteSource struct {
	DB   *sql.DB
	Name string
}

// Load queries the database.
func (s SQLiteSource) Load(ctx context.Context) ([]Record, error) {
	return LoadSQLite(ctx, s.DB)
}

func (s SQLiteSource) String() string {
	return "sqlite:" + s.Name
}
