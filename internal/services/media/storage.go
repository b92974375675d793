package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/rajivgeraev/barter-api/internal/config"
)

// Asset - загруженный файл в хранилище
type Asset struct {
	AssetID   string    `json:"asset_id"`
	PublicID  string    `json:"public_id"`
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Storage - операции с хранилищем медиафайлов
type Storage interface {
	Upload(ctx context.Context, file io.Reader, folder, publicID string) (*Asset, error)
	List(ctx context.Context, prefix string, limit int) ([]Asset, error)
	// Remove возвращает false, если файла не было
	Remove(ctx context.Context, publicID string) (bool, error)
}

// CloudinaryStorage хранит изображения в Cloudinary
type CloudinaryStorage struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryStorage создает клиент Cloudinary
func NewCloudinaryStorage(cfg config.CloudinaryConfig) (*CloudinaryStorage, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryStorage{cld: cld}, nil
}

func (s *CloudinaryStorage) Upload(ctx context.Context, file io.Reader, folder, publicID string) (*Asset, error) {
	res, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:   folder,
		PublicID: publicID,
	})
	if err != nil {
		return nil, err
	}
	if res.Error.Message != "" {
		return nil, errors.New(res.Error.Message)
	}

	return &Asset{
		AssetID:   res.AssetID,
		PublicID:  res.PublicID,
		URL:       res.SecureURL,
		Format:    res.Format,
		Width:     res.Width,
		Height:    res.Height,
		Bytes:     res.Bytes,
		CreatedAt: res.CreatedAt,
	}, nil
}

func (s *CloudinaryStorage) List(ctx context.Context, prefix string, limit int) ([]Asset, error) {
	res, err := s.cld.Admin.Assets(ctx, admin.AssetsParams{
		DeliveryType: "upload",
		Prefix:       prefix,
		MaxResults:   limit,
	})
	if err != nil {
		return nil, err
	}
	if res.Error.Message != "" {
		return nil, errors.New(res.Error.Message)
	}

	assets := make([]Asset, 0, len(res.Assets))
	for _, a := range res.Assets {
		assets = append(assets, Asset{
			AssetID:   a.AssetID,
			PublicID:  a.PublicID,
			URL:       a.SecureURL,
			Format:    a.Format,
			Width:     a.Width,
			Height:    a.Height,
			Bytes:     a.Bytes,
			CreatedAt: a.CreatedAt,
		})
	}
	return assets, nil
}

func (s *CloudinaryStorage) Remove(ctx context.Context, publicID string) (bool, error) {
	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return false, err
	}
	if res.Error.Message != "" {
		return false, errors.New(res.Error.Message)
	}
	return res.Result == "ok", nil
}

// ImageURL строит URL доставки изображения по public_id
func (s *CloudinaryStorage) ImageURL(publicID string) (string, error) {
	img, err := s.cld.Image(publicID)
	if err != nil {
		return "", err
	}
	return img.String()
}
