package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/wjixiang/aikb/config"
	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/pkg/logging"
	"github.com/wjixiang/aikb/utils"
)

// Service is the object store: original PDFs, split part PDFs and the
// per-part markdown produced between conversion and merge.
type Service struct {
	Client           *minio.Client
	Config           *minio.Options
	Bucket           string
	StorageType      string
	FileKeyGenerator *utils.FileKeyGenerator
}

func InitStorageService(cfg *config.Config) (*Service, error) {
	var minioClient *minio.Client
	var err error

	switch cfg.StorageType {
	case "minio":
		minioClient, err = utils.CreateMinIOClient(cfg)
	case "s3":
		minioClient, err = utils.CreateS3Client(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
	if err != nil {
		logging.Logger.Error("fail InitStorageService", "error", err)
		return nil, err
	}
	keyGenerator := utils.NewFileKeyGenerator(utils.StrategyDateBased, "pdfs")
	ss := &Service{
		Client:           minioClient,
		Config:           &minio.Options{Region: cfg.BucketRegion},
		Bucket:           cfg.BucketName,
		StorageType:      cfg.StorageType,
		FileKeyGenerator: keyGenerator,
	}
	if err := ss.EnsureBucketExists(); err != nil {
		logging.Logger.Error("fail InitStorageService", "error", err)
		return nil, err
	}
	logging.Logger.Info("Storage service initialized",
		"type", cfg.StorageType,
		"bucket", cfg.BucketName,
		"region", cfg.BucketRegion,
	)

	return ss, nil
}

func (ss *Service) EnsureBucketExists() error {
	ctx := context.Background()
	exists, err := ss.Client.BucketExists(ctx, ss.Bucket)
	if err != nil {
		logging.Logger.Error("fail ensureBucketExists", "error", err)
		return err
	}
	if exists {
		return nil
	}
	err = ss.Client.MakeBucket(ctx, ss.Bucket, minio.MakeBucketOptions{
		Region: ss.Config.Region,
	})
	if err != nil {
		if ss.StorageType == "s3" {
			logging.Logger.Warn("Could not create S3 bucket (might exist or no permission)",
				"bucket", ss.Bucket, "error", err)
			return nil
		}
		logging.Logger.Error("fail ensureBucketExists", "error", err)
		return err
	}
	logging.Logger.Info("Bucket created successfully")
	return nil
}

func (ss *Service) GeneratePresignedPostUpload(filename string, maxFileSize int64, docID string) (*models.UploadResp, error) {
	fileKey := ss.FileKeyGenerator.GenerateFileKey(filename, "")

	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(ss.Bucket); err != nil {
		return nil, err
	}
	if err := policy.SetKey(fileKey); err != nil {
		return nil, err
	}
	if err := policy.SetExpires(time.Now().Add(15 * time.Minute)); err != nil {
		return nil, err
	}
	if maxFileSize > 0 {
		if err := policy.SetContentLengthRange(1, maxFileSize); err != nil {
			return nil, err
		}
	}
	if err := policy.SetContentType("application/pdf"); err != nil {
		return nil, err
	}

	postURL, formData, err := ss.Client.PresignedPostPolicy(context.Background(), policy)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned POST: %w", err)
	}

	return &models.UploadResp{
		DocId:     docID,
		UploadURL: postURL.String(),
		FileKey:   fileKey,
		Fields:    formData,
		Expires:   time.Now().Add(15 * time.Minute),
		Provider:  ss.StorageType,
	}, nil
}

func (ss *Service) FileExists(fileKey string) (bool, error) {
	_, err := ss.Client.StatObject(context.Background(), ss.Bucket, fileKey, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (ss *Service) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := ss.Client.PutObject(ctx, ss.Bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		logging.Logger.Error("fail PutObject", "error", err, "key", key)
		return err
	}
	return nil
}

func (ss *Service) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := ss.Client.GetObject(ctx, ss.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer func(obj *minio.Object) {
		if err := obj.Close(); err != nil {
			logging.Logger.Error("fail closing object", "error", err, "key", key)
		}
	}(obj)

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

func (ss *Service) RemoveObject(ctx context.Context, key string) error {
	return ss.Client.RemoveObject(ctx, ss.Bucket, key, minio.RemoveObjectOptions{})
}
