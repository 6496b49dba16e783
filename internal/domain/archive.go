package domain

import (
	"time"
)

// ArchiveStatus tracks whether an article's raw HTML lives in cold storage.
type ArchiveStatus string

const (
	// ArchiveStatusActive means the raw HTML has been restored to the database.
	ArchiveStatusActive ArchiveStatus = "ACTIVE"
	// ArchiveStatusArchived means the raw HTML lives only in the archive file.
	ArchiveStatusArchived ArchiveStatus = "ARCHIVED"
)

// ArchiveRecord maps an article to its cold storage location.
type ArchiveRecord struct {
	ID        int64  `db:"id"         json:"id"`
	ArticleID int64  `db:"article_id" json:"article_id"`
	Source    string `db:"source"     json:"source"`

	ArchivePath *string       `db:"archive_path" json:"archive_path,omitempty"`
	Status      ArchiveStatus `db:"status"       json:"status"`

	// CompressedSize is apportioned from the batch file size, a hint only.
	OriginalSize   int64  `db:"original_size"   json:"original_size"`
	CompressedSize *int64 `db:"compressed_size" json:"compressed_size,omitempty"`

	ArchivedAt *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
}
