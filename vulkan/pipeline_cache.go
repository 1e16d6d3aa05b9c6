package vulkan

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// cacheHeader is the header the driver writes at the start of pipeline cache data.
//
//	offset  size  field
//	     0     4  header length
//	     4     4  header version
//	     8     4  vendor ID
//	    12     4  device ID
//	    16    16  pipeline cache UUID
type cacheHeader struct {
	Length    uint32
	Version   common.PipelineCacheHeaderVersion
	VendorID  uint32
	DeviceID  uint32
	CacheUUID uuid.UUID
}

// cacheIdentity is what a cache header must match to be reused.
type cacheIdentity struct {
	VendorID  uint32
	DeviceID  uint32
	CacheUUID uuid.UUID
}

// checkCacheHeader returns nil when data starts with a header written by the device
// described by want.
func checkCacheHeader(data []byte, want cacheIdentity) error {
	var header cacheHeader
	err := binary.Read(bytes.NewReader(data), common.ByteOrder, &header)
	if err != nil {
		return errors.Wrap(err, "reading header")
	}

	switch {
	case header.Length == 0:
		return errors.Newf("bad header length 0x%x", header.Length)
	case header.Version != common.PipelineCacheHeaderVersion1:
		return errors.Newf("unsupported header version 0x%x", header.Version)
	case header.VendorID != want.VendorID:
		return errors.Newf("vendor ID 0x%x, driver expects 0x%x", header.VendorID, want.VendorID)
	case header.DeviceID != want.DeviceID:
		return errors.Newf("device ID 0x%x, driver expects 0x%x", header.DeviceID, want.DeviceID)
	case header.CacheUUID != want.CacheUUID:
		return errors.Newf("cache UUID %s, driver expects %s", header.CacheUUID, want.CacheUUID)
	}
	return nil
}

// PipelineCache is a pipeline cache seeded from, and saved back to, a file. It makes the
// pipeline rebuilds that follow every swap chain recreation cheap.
type PipelineCache struct {
	ctx   *Context
	path  string
	log   *slog.Logger
	cache core1_0.PipelineCache
}

// NewPipelineCache creates a pipeline cache seeded with data, which is usually the contents
// of the file at path. Data written by a different device or driver is discarded along with
// the file. An empty path disables saving.
func (c *Context) NewPipelineCache(path string, data []byte) (*PipelineCache, error) {
	if len(data) > 0 {
		err := checkCacheHeader(data, cacheIdentity{
			VendorID:  c.properties.VendorID,
			DeviceID:  c.properties.DeviceID,
			CacheUUID: c.properties.PipelineCacheUUID,
		})
		if err != nil {
			c.log.Warn("discarding pipeline cache", "path", path, "reason", err)
			data = nil
			if path != "" {
				_ = os.Remove(path)
			}
		}
	}

	cache, _, err := c.deviceDriver.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: data,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating pipeline cache")
	}

	c.log.Debug("pipeline cache ready", "path", path, "seeded", len(data) > 0)
	return &PipelineCache{ctx: c, path: path, log: c.log, cache: cache}, nil
}

func (p *PipelineCache) handle() *core1_0.PipelineCache {
	return &p.cache
}

// Save writes the cache contents to its file.
func (p *PipelineCache) Save() error {
	if p.path == "" {
		return nil
	}

	data, _, err := p.ctx.deviceDriver.GetPipelineCacheData(p.cache)
	if err != nil {
		return errors.Wrap(err, "reading pipeline cache data")
	}

	err = os.WriteFile(p.path, data, 0666)
	if err != nil {
		return errors.Wrapf(err, "writing pipeline cache %s", p.path)
	}

	p.log.Debug("pipeline cache saved", "path", p.path, "bytes", len(data))
	return nil
}

func (p *PipelineCache) Destroy() {
	if p.cache.Initialized() {
		p.ctx.deviceDriver.DestroyPipelineCache(p.cache, nil)
		p.cache = core1_0.PipelineCache{}
	}
}
