package metadata

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	BootIDKey          = "engine_boot_id"
	LaunchTimestampKey = "engine_launched_at"
)

// Provider identifies one engine process. Every run it starts is stamped with
// the same boot id, so runs left unfinished by an earlier process can be told
// apart from live ones.
type Provider struct {
	once          sync.Once
	bootID        string
	launchTime    int64
	formattedTime string
}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) BootID() string {
	p.once.Do(p.initialize)
	return p.bootID
}

// LaunchTimestamp returns the launch time in Unix nanoseconds.
func (p *Provider) LaunchTimestamp() int64 {
	p.once.Do(p.initialize)
	return p.launchTime
}

// Stamp records the boot metadata on a run's metadata map.
func (p *Provider) Stamp(metadata map[string]interface{}) map[string]interface{} {
	p.once.Do(p.initialize)

	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata[BootIDKey] = p.bootID
	metadata[LaunchTimestampKey] = p.formattedTime
	return metadata
}

// Owns reports whether metadata was stamped by this provider.
func (p *Provider) Owns(metadata map[string]interface{}) bool {
	return BootIDOf(metadata) == p.BootID()
}

func BootIDOf(metadata map[string]interface{}) string {
	if metadata == nil {
		return ""
	}
	id, _ := metadata[BootIDKey].(string)
	return id
}

func (p *Provider) initialize() {
	p.bootID = uuid.New().String()
	p.launchTime = time.Now().UnixNano()
	p.formattedTime = time.Unix(0, p.launchTime).UTC().Format(time.RFC3339Nano)
}
