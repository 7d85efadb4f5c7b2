package builder

import (
	"time"

	"github.com/google/uuid"
)

// Drive lifecycle statuses. Transitions only ever move forward:
// created -> prepared -> deployed -> triggered -> recovered, with recover
// reachable from prepared, deployed, and triggered.
const (
	StatusCreated   = "created"
	StatusPrepared  = "prepared"
	StatusDeployed  = "deployed"
	StatusTriggered = "triggered"
	StatusRecovered = "recovered"
)

// memoDelimiter joins the drive code and file path into a token memo used for
// fallback correlation when an alert carries no explicit token id.
const memoDelimiter = "|"

// Drive is the subset of a drive record the builder needs.
type Drive struct {
	ID          uuid.UUID
	Code        string
	Status      string
	ProfileName string
	CreatedAt   time.Time
}

// Profile is the declarative template driving provisioning.
type Profile struct {
	ID        uuid.UUID
	Name      string
	Structure FileStructure
}

// FileStructure is the declared folder/file layout of a profile.
type FileStructure struct {
	Folders []string    `json:"folders"`
	Files   []FileEntry `json:"files"`
}

// FileEntry declares one decoy file to place on the drive.
type FileEntry struct {
	Name          string `json:"name"`
	Folder        string `json:"folder"`
	Type          string `json:"type"`
	RedirectTheme string `json:"redirect_theme"`
}

// Path returns the entry's target path on the drive.
func (e FileEntry) Path() string {
	if e.Folder != "" {
		return e.Folder + "/" + e.Name
	}
	return e.Name
}

// Manifest records the artifacts and folders produced by preparing a drive.
// File order matches the profile's declared order.
type Manifest struct {
	Folders        []string       `json:"folders"`
	Files          []ManifestFile `json:"files"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	FileCount      int            `json:"file_count"`
	PreparedAt     time.Time      `json:"prepared_at"`
}

// ManifestFile describes one produced artifact.
type ManifestFile struct {
	Path       string    `json:"path"`
	TokenID    string    `json:"token_id"`
	TokenType  string    `json:"token_type"`
	SizeBytes  int64     `json:"size_bytes"`
	HasContent bool      `json:"has_content"`
	CreatedAt  time.Time `json:"created_at"`
}

// entryResult is the per-entry outcome of provisioning: either a token plus
// its manifest file, a failure, or a skip for under-specified entries.
// Failures never abort the remaining entries.
type entryResult struct {
	entry FileEntry
	token tokenRecord
	file  ManifestFile
	err   error
	skip  bool
}

// tokenRecord carries the registry data persisted for one provisioned token.
type tokenRecord struct {
	CanaryTokenID   string
	TokenType       string
	Filename        string
	FilePath        string
	Memo            string
	URL             string
	RedirectURL     string
	RedirectTheme   string
	AWSAccessKeyID  string
	AWSSecretKey    string
}
