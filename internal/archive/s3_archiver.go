// Package archive ships terminally failed webhook logs to S3 so the delivery
// audit trail survives database retention.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"payment-gateway/internal/config"
	"payment-gateway/internal/models"
	"payment-gateway/internal/telemetry"
)

// LogStore is the persistence surface the archiver needs.
type LogStore interface {
	ListFailedUnarchived(ctx context.Context, limit int) ([]models.WebhookLog, error)
	MarkWebhookLogArchived(ctx context.Context, id uuid.UUID) error
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver sweeps failed logs into an S3 bucket on a fixed interval.
type Archiver struct {
	cfg    config.Config
	store  LogStore
	client objectPutter
}

// New builds an archiver with a real S3 client.
func New(ctx context.Context, cfg config.Config, store LogStore) (*Archiver, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Archiver{cfg: cfg, store: store, client: client}, nil
}

// NewWithClient wires an explicit client, mainly for tests.
func NewWithClient(cfg config.Config, store LogStore, client objectPutter) *Archiver {
	return &Archiver{cfg: cfg, store: store, client: client}
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveS3Region),
	}
	if cfg.ArchiveS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.ArchiveS3Endpoint,
					HostnameImmutable: cfg.ArchiveS3PathStyle,
					SigningRegion:     cfg.ArchiveS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ArchiveS3PathStyle
	}), nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.ArchiveInterval)
	defer ticker.Stop()
	log.Printf("webhook log archiver started, bucket=%s interval=%s", a.cfg.ArchiveBucket, a.cfg.ArchiveInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("webhook log archiver stopped")
			return
		case <-ticker.C:
			a.Sweep(ctx)
		}
	}
}

// Sweep uploads one batch of failed, unarchived logs. It returns how many
// were uploaded.
func (a *Archiver) Sweep(ctx context.Context) int {
	logs, err := a.store.ListFailedUnarchived(ctx, 100)
	if err != nil {
		log.Printf("list failed webhook logs: %v", err)
		return 0
	}

	archived := 0
	for _, l := range logs {
		body, err := json.Marshal(l)
		if err != nil {
			log.Printf("marshal webhook log %s: %v", l.ID, err)
			continue
		}
		key := path.Join(a.cfg.ArchivePrefix, l.CreatedAt.UTC().Format("2006/01/02"), l.ID.String()+".json")
		_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.cfg.ArchiveBucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			log.Printf("archive webhook log %s: %v", l.ID, err)
			continue
		}
		if err := a.store.MarkWebhookLogArchived(ctx, l.ID); err != nil {
			// The next sweep re-uploads the same object; harmless overwrite.
			log.Printf("mark webhook log %s archived: %v", l.ID, err)
			continue
		}
		telemetry.LogsArchived.Inc()
		archived++
	}
	return archived
}
