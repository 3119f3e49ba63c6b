package specification

import "gorm.io/gorm"

// ByFileHash selects the session for one document fingerprint.
type ByFileHash struct {
	FileHash string
}

func (s ByFileHash) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("file_hash = ?", s.FileHash)
}
