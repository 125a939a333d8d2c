package wiring

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/internal/infra/config"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/spounge-ai/medvault/internal/kms"
)

func (c *Container) providePgxPool(ctx context.Context) (*pgxpool.Pool, error) {
	if c.pool != nil {
		return c.pool, nil
	}
	db := c.Config.Persistence.Database
	if c.Config.Persistence.AutoMigrate {
		if err := persistence.MigrateUp(db.URL); err != nil {
			return nil, err
		}
	}
	pool, err := persistence.NewConnectionPool(ctx, db)
	if err != nil {
		return nil, err
	}
	c.pool = pool
	return pool, nil
}

func (c *Container) provideAWSConfig(ctx context.Context) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Config.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	return awsCfg, nil
}

func (c *Container) s3Options() []func(*s3.Options) {
	endpoint := c.Config.AWS.Endpoint
	if endpoint == "" {
		return nil
	}
	return []func(*s3.Options){func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}}
}

func (c *Container) provideS3(ctx context.Context, prefix string) (domain.Backend, error) {
	if c.Config.AWS.S3Bucket == "" {
		return nil, errors.New("aws.s3_bucket is required for the s3 backend")
	}
	awsCfg, err := c.provideAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return persistence.NewS3Storage(awsCfg, c.Config.AWS.S3Bucket, prefix, c.Logger, c.s3Options()...), nil
}

func (c *Container) provideTierB(ctx context.Context, ov overrides) (domain.Backend, error) {
	if ov.tierB != nil {
		return ov.tierB, nil
	}
	switch c.Config.Storage.TierB {
	case config.TierBNone, "":
		return nil, nil
	case config.TierBPostgres:
		pool, err := c.providePgxPool(ctx)
		if err != nil {
			return nil, err
		}
		return persistence.NewPostgresStorage(pool, constants.NamespaceKeys, c.Logger), nil
	case config.TierBS3:
		return c.provideS3(ctx, c.Config.AWS.S3Prefix)
	case config.TierBVault:
		return persistence.NewVaultStorage(c.Config.HashiCorpVault)
	default:
		return nil, fmt.Errorf("unknown tier B backend %q", c.Config.Storage.TierB)
	}
}

func (c *Container) provideArchive(ctx context.Context, ov overrides) (domain.AuditArchive, error) {
	if ov.archive != nil {
		return ov.archive, nil
	}
	if !c.Config.Archive.Enabled {
		return nil, nil
	}
	pool, err := c.providePgxPool(ctx)
	if err != nil {
		return nil, err
	}
	return persistence.NewAuditRepository(pool), nil
}

func (c *Container) provideExportSink(ctx context.Context, ov overrides) (domain.Backend, error) {
	if ov.exportSink != nil {
		return ov.exportSink, nil
	}
	if c.Config.Export.Sink != config.ExportSinkS3 {
		return nil, nil
	}
	return c.provideS3(ctx, "")
}

func (c *Container) provideWrapper(ctx context.Context) (domain.KeyWrapper, error) {
	switch c.Config.Vault.Wrapper {
	case config.WrapperNone, "":
		return kms.NoopWrapper{}, nil
	case config.WrapperLocal:
		w, err := kms.NewLocalWrapper(c.Config.Vault.MasterKey)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, w.Close)
		return w, nil
	case config.WrapperAWS:
		if c.Config.AWS.KMSKeyARN == "" {
			return nil, errors.New("aws.kms_key_arn is required for the aws wrapper")
		}
		awsCfg, err := c.provideAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		return kms.NewAWSWrapper(awsCfg, c.Config.AWS.KMSKeyARN), nil
	default:
		return nil, fmt.Errorf("unknown key wrapper %q", c.Config.Vault.Wrapper)
	}
}
