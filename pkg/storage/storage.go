// Package storage は編集結果の画像と、その操作内容を記録した YAML メタデータをローカルに保存します。
//
// 1回の操作につき <root>/<id>/ ディレクトリを1つ作り、画像と metadata.yaml を置きます。
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"gopkg.in/yaml.v3"
)

const (
	metadataFile    = "metadata.yaml"
	metadataVersion = "1.0"
)

// Metadata は1回の編集操作の記録です。
type Metadata struct {
	Version     string       `yaml:"version"`
	ID          string       `yaml:"id"`
	Operation   string       `yaml:"operation"`
	Timestamp   time.Time    `yaml:"timestamp"`
	Model       string       `yaml:"model"`
	Source      string       `yaml:"source,omitempty"`
	Instruction string       `yaml:"instruction"`
	Label       string       `yaml:"label,omitempty"`
	Strategy    string       `yaml:"strategy,omitempty"`
	Result      *ResultInfo  `yaml:"result,omitempty"`
	Error       *ErrorRecord `yaml:"error,omitempty"`
}

// ResultInfo は保存した画像ファイルの情報です。
type ResultInfo struct {
	Filename string `yaml:"filename"`
	MimeType string `yaml:"mime_type"`
	Bytes    int    `yaml:"bytes"`
}

// ErrorRecord は失敗した操作のエラー内容です。
type ErrorRecord struct {
	Kind    string `yaml:"kind"`
	Message string `yaml:"message"`
}

// Storage はローカルディスク上の保存先です。
type Storage struct {
	rootPath string
}

// NewStorage は Storage を生成します。
func NewStorage(rootPath string) (*Storage, error) {
	if strings.TrimSpace(rootPath) == "" {
		return nil, fmt.Errorf("rootPath is required")
	}
	return &Storage{rootPath: rootPath}, nil
}

// Root は保存先のルートディレクトリを返します。
func (s *Storage) Root() string { return s.rootPath }

// SaveResult は編集結果を保存し、メタデータを書き込みます。
// result が nil で editErr がある場合は、失敗の記録だけを残します。
func (s *Storage) SaveResult(meta Metadata, result *domain.EditResult, editErr error) (*Metadata, error) {
	meta.ID = uuid.NewString()
	dir := filepath.Join(s.rootPath, meta.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if result != nil {
		filename := "edited" + extensionFor(result.MimeType)
		if err := os.WriteFile(filepath.Join(dir, filename), result.Data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to save image: %w", err)
		}
		meta.Result = &ResultInfo{Filename: filename, MimeType: result.MimeType, Bytes: len(result.Data)}
	}
	if editErr != nil {
		meta.Error = &ErrorRecord{Kind: domain.KindOf(editErr).String(), Message: editErr.Error()}
	}

	if err := s.SaveMetadata(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// SaveMetadata は metadata.yaml を書き込みます。
func (s *Storage) SaveMetadata(meta *Metadata) error {
	if meta.ID == "" {
		return fmt.Errorf("metadata id is required")
	}
	if meta.Version == "" {
		meta.Version = metadataVersion
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}

	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.rootPath, meta.ID, metadataFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// LoadMetadata は id のメタデータを読み込みます。
func (s *Storage) LoadMetadata(id string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.rootPath, id, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// ImagePath は保存済み画像のパスを返します。画像が無い操作ではエラーです。
func (s *Storage) ImagePath(meta *Metadata) (string, error) {
	if meta.Result == nil || meta.Result.Filename == "" {
		return "", fmt.Errorf("operation %s has no image", meta.ID)
	}
	return filepath.Join(s.rootPath, meta.ID, meta.Result.Filename), nil
}

// List は保存済みの操作を新しい順に返します。メタデータが読めないディレクトリは無視します。
func (s *Storage) List() ([]*Metadata, error) {
	entries, err := os.ReadDir(s.rootPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*Metadata{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var list []*Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.LoadMetadata(entry.Name())
		if err != nil {
			continue
		}
		list = append(list, meta)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Timestamp.After(list[j].Timestamp)
	})
	return list, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
