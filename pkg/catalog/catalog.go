// Package catalog caches the tag names bound to device points.
package catalog

import (
	"context"
	"sync"

	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
	"datapulse/pkg/utils/differenceutil"
	"k8s.io/klog/v2"
)

var _ runtime.TagCatalog = (*Catalog)(nil)

// Catalog is replaced wholesale on Reload; lookups never see a partial load.
type Catalog struct {
	loader runtime.TagLoader

	mux  sync.RWMutex
	tags map[runtime.PointAddress]runtime.TagInfo
}

func New(loader runtime.TagLoader) *Catalog {
	return &Catalog{
		loader: loader,
		tags:   make(map[runtime.PointAddress]runtime.TagInfo),
	}
}

func (c *Catalog) Lookup(kind constant.PointKind, address uint16) (runtime.TagInfo, bool) {
	c.mux.RLock()
	defer c.mux.RUnlock()
	info, ok := c.tags[runtime.PointAddress{Kind: kind, Address: address}]
	return info, ok
}

// Reload keeps the previous cache when the loader fails.
func (c *Catalog) Reload(ctx context.Context) error {
	tags, err := c.loader.LoadTags(ctx)
	if err != nil {
		klog.ErrorS(err, "Failed to reload tag catalog")
		return err
	}
	next := make(map[runtime.PointAddress]runtime.TagInfo, len(tags))
	for _, tag := range tags {
		next[tag.PointAddress] = tag.TagInfo
	}
	c.mux.Lock()
	previous := c.tags
	c.tags = next
	c.mux.Unlock()
	removed, _, added := differenceutil.DifferenceAndIntersection(differenceutil.Keys(previous), differenceutil.Keys(next))
	klog.V(3).InfoS("Reloaded tag catalog", "tags", len(next), "added", len(added), "removed", len(removed))
	return nil
}

func (c *Catalog) Len() int {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return len(c.tags)
}

// Clear drops every cached tag.
func (c *Catalog) Clear() {
	c.mux.Lock()
	c.tags = make(map[runtime.PointAddress]runtime.TagInfo)
	c.mux.Unlock()
}
