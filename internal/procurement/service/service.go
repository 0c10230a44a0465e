package service

import (
	"github.com/bitfantasy/procura/internal/config"
	"github.com/bitfantasy/procura/internal/procurement/matching"
	"github.com/bitfantasy/procura/internal/procurement/repository"
	"github.com/bsm/redislock"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	BOM      *BOMService
	Pipeline *PipelineService
	Review   *ReviewService
	PO       *POService
	Supplier *SupplierService
	Approval *ApprovalService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	// 初始化MinIO客户端，未配置或初始化失败时回退本地磁盘存储
	var store ObjectStore
	if cfg.MinIO.Endpoint != "" {
		minioClient, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("MinIO初始化失败，回退本地存储", zap.Error(err))
		} else {
			store = NewMinioStore(minioClient, cfg.MinIO.Bucket)
		}
	}
	if store == nil {
		store = NewLocalStore(cfg.Procurement.UploadDir)
		logger.Info("使用本地磁盘存储BOM源文件", zap.String("dir", cfg.Procurement.UploadDir))
	}

	// 运行互斥锁（数据库活动任务检查才是权威，锁只收窄进程间竞态窗口）
	var locker *redislock.Client
	if rdb != nil {
		locker = redislock.New(rdb)
	}

	matcher := matching.NewCatalogMatcher(repos.Supplier)

	poSvc := NewPOService(repos.PO, repos.BOM, repos.Approval, repos.Supplier, db, cfg.Procurement, logger)

	return &Services{
		BOM:      NewBOMService(repos.BOM, repos.Task, store, rdb, db, logger),
		Pipeline: NewPipelineService(repos.BOM, repos.Task, repos.Approval, matcher, store, poSvc, locker, cfg.Procurement, logger),
		Review:   NewReviewService(repos.BOM, repos.Supplier, repos.Approval, db),
		PO:       poSvc,
		Supplier: NewSupplierService(repos.Supplier),
		Approval: NewApprovalService(repos.Approval),
	}
}
