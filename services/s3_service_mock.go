package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"sync"
)

// MockS3Service keeps objects in memory and records deletions. Error fields
// let tests script bucket failures.
type MockS3Service struct {
	mu      sync.RWMutex
	objects map[string][]byte
	seq     int

	UploadErr  error // returned by UploadFile when set
	PresignErr error // returned by GetPresignedURL when set
	DeleteErr  error // returned by DeleteFile when set

	UploadCalls int
	Deleted     []string
}

func NewMockS3Service() *MockS3Service {
	return &MockS3Service{objects: make(map[string][]byte)}
}

// SetAsMockForTesting installs this mock as the global S3 service
func (m *MockS3Service) SetAsMockForTesting() {
	SetS3Service(m)
}

func (m *MockS3Service) UploadFile(fileHeader *multipart.FileHeader) (string, error) {
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

	m.seq++
	s3Key := fmt.Sprintf("products/%04d_%s", m.seq, fileHeader.Filename)
	m.objects[s3Key] = content
	return s3Key, nil
}

func (m *MockS3Service) GetPresignedURL(s3Key string) (string, error) {
	if s3Key == "" {
		return "", nil
	}
	if m.PresignErr != nil {
		return "", m.PresignErr
	}

	m.mu.RLock()
	_, exists := m.objects[s3Key]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("no such object: %s", s3Key)
	}

	return fmt.Sprintf("https://agriconnect-test.s3.ap-south-1.amazonaws.com/%s?signed=1", s3Key), nil
}

func (m *MockS3Service) DeleteFile(s3Key string) error {
	if s3Key == "" {
		return nil
	}
	if m.DeleteErr != nil {
		return m.DeleteErr
	}

	m.mu.Lock()
	delete(m.objects, s3Key)
	m.Deleted = append(m.Deleted, s3Key)
	m.mu.Unlock()
	return nil
}

// FileExists reports whether the key is present in the mock bucket
func (m *MockS3Service) FileExists(s3Key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.objects[s3Key]
	return exists
}

// ObjectContent returns the stored bytes for assertions
func (m *MockS3Service) ObjectContent(s3Key string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[s3Key]
}
