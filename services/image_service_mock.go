package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"sync"

	"github.com/agriconnect/agriconnect-api/utils"
)

// MockImageService validates uploads the same way the real pipeline does but
// stores photos in memory
type MockImageService struct {
	mu     sync.RWMutex
	photos map[string][]byte

	UploadErr   error // returned by UploadImage when set, after validation
	UploadCalls int
}

func NewMockImageService() *MockImageService {
	return &MockImageService{photos: make(map[string][]byte)}
}

// SetAsMockForTesting installs this mock as the global image service
func (m *MockImageService) SetAsMockForTesting() {
	SetImageService(m)
}

func (m *MockImageService) UploadImage(fileHeader *multipart.FileHeader) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.UploadCalls++
	if m.UploadErr != nil {
		return "", m.UploadErr
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	imageKey := fmt.Sprintf("products/mock_%s", fileHeader.Filename)
	m.photos[imageKey] = content
	return imageKey, nil
}

func (m *MockImageService) GetImageURL(imageKey string) (string, error) {
	if imageKey == "" {
		return "", nil
	}

	m.mu.RLock()
	_, exists := m.photos[imageKey]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("no such photo: %s", imageKey)
	}

	return fmt.Sprintf("https://agriconnect-test.s3.ap-south-1.amazonaws.com/%s?signed=1", imageKey), nil
}

func (m *MockImageService) DeleteImage(imageKey string) error {
	if imageKey == "" {
		return nil
	}

	m.mu.Lock()
	delete(m.photos, imageKey)
	m.mu.Unlock()
	return nil
}

// ImageExists reports whether the key is present in the mock store
func (m *MockImageService) ImageExists(imageKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.photos[imageKey]
	return exists
}
