package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/hibiken/asynq"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/adapter/googledrive"
	"github.com/jun/scandrive/internal/adapter/memory"
	"github.com/jun/scandrive/internal/adapter/s3store"
	"github.com/jun/scandrive/internal/auth"
	"github.com/jun/scandrive/internal/config"
	"github.com/jun/scandrive/internal/crypto"
	"github.com/jun/scandrive/internal/drivesync"
	"github.com/jun/scandrive/internal/gallery"
	"github.com/jun/scandrive/internal/kv"
	"github.com/jun/scandrive/internal/lease"
	"github.com/jun/scandrive/internal/queue"
	"github.com/jun/scandrive/internal/scannereffect"
	"github.com/jun/scandrive/internal/secret"
)

// Services is the wired dependency graph shared by the API, the worker and the CLI.
type Services struct {
	Config  *config.Config
	Files   adapter.FileStore
	State   kv.Store
	Auth    *auth.AuthService
	Tokens  *auth.TokenManager
	Drive   *drivesync.Service
	Locker  lease.Locker
	Gallery *gallery.Gallery
	Effect  *scannereffect.Client

	JWTSecret        string
	APIGatewaySecret string

	queue *asynq.Client
}

// Build wires every service from cfg. DEV_MODE swaps SSM and KMS for the
// environment and a mock encryptor.
func Build(ctx context.Context, cfg *config.Config) (*Services, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	var dynamoClient *dynamodb.Client
	if cfg.Storage.Backend == "dynamodb" {
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
	}

	// ---------- Secrets ----------
	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		log.Println("Using EnvResolver (DEV_MODE=true)")
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}
	secrets, errs := secret.Load(ctx, resolver)
	for name, err := range errs {
		log.Printf("WARNING: failed to resolve %s: %v", name, err)
	}

	s := &Services{
		Config:           cfg,
		JWTSecret:        secrets.JWTSecret,
		APIGatewaySecret: secrets.APIGatewaySecret,
	}
	clientSecret := cfg.Drive.ClientSecret
	if clientSecret == "" {
		clientSecret = secrets.GoogleClientSecret
	}

	// ---------- Encryption ----------
	var encryptor crypto.Encryptor
	if cfg.DevMode {
		encryptor = crypto.NewMockEncryptor()
		log.Println("Using MockEncryptor (DEV_MODE=true)")
	} else {
		encryptor = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	}

	// ---------- Storage ----------
	switch cfg.Storage.Backend {
	case "dynamodb":
		s.State = kv.NewDynamoStore(dynamoClient, cfg.Storage.StateTable, "")
		s.Files = memory.NewStore(dynamoClient)
		s.Locker = lease.NewLockManager(dynamoClient, cfg.Storage.LeaseTable)
	case "s3":
		store, err := s3store.New(s3store.Options{
			Endpoint:  cfg.Storage.S3Endpoint,
			AccessKey: cfg.Storage.S3Access,
			SecretKey: cfg.Storage.S3Secret,
			Bucket:    cfg.Storage.S3Bucket,
			Region:    cfg.Storage.S3Region,
			UseSSL:    cfg.Storage.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		s.State = kv.NewDiskStore(cfg.StatePath)
		s.Files = store
		s.Locker = lease.NewMemoryLocker()
	default:
		s.State = kv.NewDiskStore(cfg.StatePath)
		s.Files = memory.NewStore(nil)
		s.Locker = lease.NewMemoryLocker()
	}
	log.Printf("Using %s storage backend", cfg.Storage.Backend)

	// ---------- Google auth ----------
	s.Auth = auth.NewAuthService(auth.NewOAuthConfig(cfg.Drive.ClientID, clientSecret, cfg.Drive.RedirectURL), s.State, encryptor)
	s.Tokens = auth.NewTokenManager(ctx, s.State)
	if err := s.installTokenSource(ctx); err != nil {
		return nil, err
	}

	// ---------- Drive ----------
	provider := googledrive.NewProvider(s.Tokens, cfg.Drive.Timeout,
		googledrive.WithUploadURL(cfg.Drive.UploadURL),
		googledrive.WithUploadRate(cfg.Drive.UploadsPerSecond),
	)
	newDrive := func(ctx context.Context) (drivesync.Drive, error) {
		d, err := provider.GetAdapter(ctx)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	s.Drive = drivesync.NewService(drivesync.Config{
		ClientID:       cfg.Drive.ClientID,
		APIKey:         cfg.Drive.APIKey,
		AppID:          cfg.Drive.AppID,
		FolderName:     cfg.Drive.FolderName,
		TargetFolderID: cfg.Drive.TargetFolderID,
	}, s.Tokens, s.Files, newDrive)
	s.Gallery = gallery.New(s.Files, s.Drive)

	// ---------- Scanner effect ----------
	var uploader scannereffect.DriveUploader
	if cfg.Queue.Enabled {
		s.queue = asynq.NewClient(RedisOpt(cfg.Queue))
		uploader = queue.NewDriveUploader(s.queue)
	} else {
		uploader = scannereffect.DriveUploaderFunc(func(ctx context.Context, fileID string) error {
			out, err := s.Drive.SyncFile(ctx, fileID)
			if err == nil && out.Errored > 0 {
				err = fmt.Errorf("upload of %s failed", fileID)
			}
			return err
		})
	}
	s.Effect = scannereffect.NewClient(cfg.ScannerEffect.BaseURL, cfg.ScannerEffect.Timeout,
		scannereffect.WithDriveSync(s.Files, uploader))

	return s, nil
}

// installTokenSource prefers a service account and falls back to a stored refresh token.
func (s *Services) installTokenSource(ctx context.Context) error {
	if raw := s.Config.Drive.ServiceAccountJSON; raw != "" {
		key := []byte(raw)
		if !json.Valid(key) {
			data, err := os.ReadFile(raw)
			if err != nil {
				return fmt.Errorf("read service account key: %w", err)
			}
			key = data
		}
		src, err := auth.ServiceAccountSource(context.WithoutCancel(ctx), key)
		if err != nil {
			return err
		}
		s.Tokens.SetTokenSource(src)
		log.Println("Using service account credentials for Drive")
		return nil
	}

	src, err := s.Auth.TokenSource(context.WithoutCancel(ctx))
	switch {
	case err == nil:
		s.Tokens.SetTokenSource(src)
	case errors.Is(err, auth.ErrNoRefreshToken):
	default:
		log.Printf("WARNING: stored refresh token unusable: %v", err)
	}
	return nil
}

// RedisOpt converts the queue settings for asynq.
func RedisOpt(q config.QueueConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: q.RedisAddr, Password: q.RedisPassword, DB: q.RedisDB}
}

// Close releases the queue connection.
func (s *Services) Close() error {
	if s.queue != nil {
		return s.queue.Close()
	}
	return nil
}
