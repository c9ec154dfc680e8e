package common

import (
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// PageSize is the fixed size of every on-disk page, in bytes.
const PageSize = 4096

// leafPageHeaderSize and internalPageHeaderSize bound how many
// (key, value) entries fit in a page of PageSize bytes, used to derive
// LeafMaxSize/InternalMaxSize from KeySize when the caller leaves them
// at zero. Mirrors how BusTub derives LEAF_PAGE_SIZE/INTERNAL_PAGE_SIZE
// from sizeof(GenericKey<N>) at compile time.
const (
	leafPageHeaderSize     = 28 // page_type,lsn,size,max_size,parent_id,page_id,next_page_id (4*7)
	internalPageHeaderSize = 24 // same minus next_page_id
	valueSize              = 8 // RID (page_id + slot_num), or a child PageID padded to 8
)

// Config bundles every tunable named in spec §6.
type Config struct {
	PoolSize                 int           `toml:"pool_size"`
	LeafMaxSize              int           `toml:"leaf_max_size"`
	InternalMaxSize          int           `toml:"internal_max_size"`
	KeySize                  int           `toml:"key_size"`
	CycleDetectionIntervalMs int           `toml:"cycle_detection_interval_ms"`
	DBFile                   string        `toml:"db_file"`
	CycleDetectionInterval   time.Duration `toml:"-"`
}

// DefaultConfig returns a Config with the same defaults BusTub's test
// harness uses: a small pool, 8-byte (int64) keys, a 50ms detector tick.
func DefaultConfig() Config {
	c := Config{
		PoolSize:                 64,
		KeySize:                  8,
		CycleDetectionIntervalMs: 50,
		DBFile:                   "bustub.db",
	}
	c.deriveAndFinalize()
	return c
}

// LoadConfig parses a TOML file and fills any zero-valued field with the
// matching DefaultConfig value before deriving LeafMaxSize/InternalMaxSize.
func LoadConfig(path string) (Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	var c Config
	if err := tree.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	c.deriveAndFinalize()
	return c, nil
}

func (c *Config) deriveAndFinalize() {
	if c.KeySize <= 0 {
		c.KeySize = 8
	}
	if c.LeafMaxSize <= 0 {
		c.LeafMaxSize = (PageSize - leafPageHeaderSize) / (c.KeySize + valueSize)
	}
	if c.InternalMaxSize <= 0 {
		// reduced by one at construction so the split point is
		// well-defined (spec §4.4).
		c.InternalMaxSize = (PageSize-internalPageHeaderSize)/(c.KeySize+valueSize) - 1
	}
	if c.CycleDetectionIntervalMs <= 0 {
		c.CycleDetectionIntervalMs = 50
	}
	c.CycleDetectionInterval = time.Duration(c.CycleDetectionIntervalMs) * time.Millisecond
	if c.PoolSize <= 0 {
		c.PoolSize = 64
	}
	if c.DBFile == "" {
		c.DBFile = "bustub.db"
	}
}
