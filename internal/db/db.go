package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"qalink/internal/logging"
	"qalink/internal/models"
	"qalink/internal/utils"
)

// Init 连接数据库、迁移表结构并写入初始分类
func Init(dsn string) (*gorm.DB, error) {
	log := logging.Component("db")
	if dsn == "" {
		// Fallback for local dev if not set
		dsn = "host=localhost user=postgres password=postgres dbname=qalink port=5432 sslmode=disable TimeZone=Asia/Shanghai"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("Database connection established")

	err = db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Tag{},
		&models.Topic{},
		&models.Post{},
		&models.Comment{},
		&models.Vote{},
		&models.Notification{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	log.Info("Database migration completed")

	seedCategories(db, log)
	return db, nil
}

func seedCategories(db *gorm.DB, log *logrus.Entry) {
	// 检查是否已有分类数据
	var count int64
	db.Model(&models.Category{}).Count(&count)
	if count > 0 {
		log.Debug("Categories already seeded, skipping")
		return
	}

	categories := []models.Category{
		{Name: "Q&A", Description: "问答区，回答按票数排序", QAEnabled: true},
		{Name: "闲聊", Description: "随便聊聊"},
	}
	for _, c := range categories {
		if err := db.Create(&c).Error; err != nil {
			log.WithError(err).WithField("category", c.Name).Warn("Failed to create category")
		}
	}
	log.Info("Initial categories created successfully")
}

// EnsureAdmin 创建初始管理员，用户名已存在时什么都不做
func EnsureAdmin(db *gorm.DB, username, email, password string) (bool, error) {
	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	admin := models.User{
		Username:   username,
		Email:      email,
		Password:   hash,
		TrustLevel: 4,
		Role:       models.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}
