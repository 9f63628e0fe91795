package combiner

import (
	"context"
	"fmt"
	"strings"

	"imagestreamstack/internal/models"
	"imagestreamstack/pkg/archive"
	"imagestreamstack/pkg/grouping"
)

// Discover scans the archive and names the channels of every dataset without
// validating or decoding anything. The archive is closed before returning.
func (c *Combiner) Discover(ctx context.Context) (*grouping.Registry, error) {
	arch, err := archive.Open(ctx, c.params.ArchivePath, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer arch.Close()

	reg, err := grouping.Scan(arch.Entries(), c.params.Suffix, c.reporter)
	if err != nil {
		return nil, fmt.Errorf("failed to scan archive: %w", err)
	}
	for _, ds := range reg.Datasets() {
		c.ApplyNames(ds)
	}
	return reg, nil
}

// Describe summarizes a dataset as "<id> : (N cells M channels)"
func Describe(ds *models.Dataset) string {
	return fmt.Sprintf("%s : (%d cells %d channels)", ds.ID, len(ds.GroupedFiles), len(ds.Channels))
}

// DescribeChannels lists the channels of a dataset as "1=BF 2=-- 3=DAPI"
func DescribeChannels(ds *models.Dataset) string {
	parts := make([]string, len(ds.Channels))
	for i, ch := range ds.Channels {
		parts[i] = fmt.Sprintf("%d=%s", ch.Index, ch)
	}
	return strings.Join(parts, " ")
}
