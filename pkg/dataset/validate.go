package dataset

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/quarrylabs/quarry/pkg/models"
)

// sqliteMagic is the 16-byte header every SQLite database file starts with.
var sqliteMagic = []byte("SQLite format 3\x00")

// Validate reads the minimal leading bytes needed to confirm the dataset's
// container format. A header-only file with zero rows is valid; a file
// missing the magic marker is rejected regardless of what follows.
func Validate(path string) models.ValidationResult {
	f, err := os.Open(path)
	if err != nil {
		return models.ValidationResult{Valid: false, Message: fmt.Sprintf("cannot open file: %v", err)}
	}
	defer f.Close()

	header := make([]byte, len(sqliteMagic))
	n, err := io.ReadFull(f, header)
	if err != nil {
		return models.ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("file too short for a SQLite database (%d bytes)", n),
		}
	}

	if !bytes.Equal(header, sqliteMagic) {
		return models.ValidationResult{
			Valid:   false,
			Message: "missing SQLite format marker; the file is not a SQLite database",
		}
	}

	return models.ValidationResult{Valid: true}
}
