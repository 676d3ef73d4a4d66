package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/prescottprue/tessellate-sub000/internal/blob"
	"github.com/prescottprue/tessellate-sub000/internal/domain"
)

const providerTag = "s3"

var bucketNameInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

// Config controls bucket naming and URL construction.
type Config struct {
	BucketPrefix  string
	StorageDomain string
	SiteDomain    string
	IndexDocument string
}

// Provisioner manages project hosting buckets.
type Provisioner struct {
	blob   blob.Store
	cfg    Config
	logger *slog.Logger
}

// New constructs a Provisioner.
func New(store blob.Store, cfg Config, logger *slog.Logger) Provisioner {
	if cfg.IndexDocument == "" {
		cfg.IndexDocument = "index.html"
	}
	return Provisioner{blob: store, cfg: cfg, logger: logger}
}

// BucketName derives a globally-unique bucket name from the hint.
func (p Provisioner) BucketName(nameHint string) string {
	hint := bucketNameInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(nameHint)), "-")
	hint = strings.Trim(hint, "-")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return p.cfg.BucketPrefix + hint + "-" + suffix
}

// Create provisions a bucket with a public-read policy and a default
// document. A failure after the bucket exists is surfaced without
// deleting the bucket; compensation belongs to the caller's layer.
func (p Provisioner) Create(ctx context.Context, nameHint string) (*domain.StorageDescriptor, error) {
	if strings.TrimSpace(nameHint) == "" {
		return nil, domain.E(domain.KindValidation, "storage name hint required")
	}
	name := p.BucketName(nameHint)
	if err := p.blob.CreateBucket(ctx, name); err != nil {
		return nil, domain.WrapErr(domain.KindUpstream, "create bucket", err)
	}
	p.logger.Info("bucket created", "bucket", name)
	if err := p.blob.ApplyPublicReadPolicy(ctx, name); err != nil {
		return nil, domain.WrapErr(domain.KindUpstream, "apply bucket policy", err)
	}
	if err := p.blob.ConfigureWebsite(ctx, name, p.cfg.IndexDocument); err != nil {
		return nil, domain.WrapErr(domain.KindUpstream, "configure website", err)
	}
	return &domain.StorageDescriptor{
		Name:      name,
		Provider:  providerTag,
		SiteURL:   fmt.Sprintf("https://%s.%s", name, p.cfg.SiteDomain),
		BucketURL: fmt.Sprintf("https://%s.%s", name, p.cfg.StorageDomain),
	}, nil
}

// Remove empties then deletes the bucket. A bucket that is already
// gone counts as success: there is nothing to remove.
func (p Provisioner) Remove(ctx context.Context, descriptor *domain.StorageDescriptor) error {
	if descriptor == nil || descriptor.Name == "" {
		return nil
	}
	keys, err := p.blob.ListObjects(ctx, descriptor.Name)
	if err != nil {
		if blob.IsNotFound(err) {
			return nil
		}
		return domain.WrapErr(domain.KindUpstream, "list bucket objects", err)
	}
	for _, key := range keys {
		if err := p.blob.DeleteObject(ctx, descriptor.Name, key); err != nil {
			if blob.IsNotFound(err) {
				continue
			}
			return domain.WrapErr(domain.KindUpstream, "empty bucket", err)
		}
	}
	if err := p.blob.DeleteBucket(ctx, descriptor.Name); err != nil {
		if blob.IsNotFound(err) {
			return nil
		}
		return domain.WrapErr(domain.KindUpstream, "delete bucket", err)
	}
	p.logger.Info("bucket removed", "bucket", descriptor.Name)
	return nil
}
