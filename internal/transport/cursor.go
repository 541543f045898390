package transport

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/clawplaza/clawlink/internal/fsutil"
)

// cursorFile is the on-disk shape of one transport's high-water mark.
type cursorFile struct {
	Cursor  string    `json:"cursor"`
	Updated time.Time `json:"updated"`
}

// CursorStore persists one inbound high-water mark per transport so daemon
// restarts do not re-process history. One small JSON file per transport,
// written atomically.
type CursorStore struct {
	dir string
	mu  sync.Mutex
}

// NewCursorStore returns a store rooted at dir.
func NewCursorStore(dir string) *CursorStore {
	return &CursorStore{dir: dir}
}

func (c *CursorStore) path(transport string) string {
	return filepath.Join(c.dir, transport+".json")
}

// Load returns the persisted cursor for a transport, or "" when none exists.
func (c *CursorStore) Load(transport string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var f cursorFile
	if err := fsutil.LoadJSON(c.path(transport), &f); err != nil {
		if fsutil.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return f.Cursor, nil
}

// Save persists the cursor for a transport.
func (c *CursorStore) Save(transport, cursor string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fsutil.EnsureDirAndWriteJSON(c.path(transport), &cursorFile{Cursor: cursor, Updated: now})
}
