package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"

	"github.com/local/sheetify/internal/sheet"
)

// gcmMagic prefixes encrypted archive objects so format detection stays
// possible if the layout ever changes.
const gcmMagic = "SHTGCM01"

// Archiver writes finalized sheet files to an S3 bucket, optionally encrypted
// with a password-derived key. Archive writes are best-effort: the Redis copy
// is the source of truth, S3 is cold storage.
type Archiver struct {
	uploader *manager.Uploader
	bucket   string
	password string
}

func NewArchiver(ctx context.Context, bucket, password string) (*Archiver, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(cfg)
	return &Archiver{uploader: manager.NewUploader(cli), bucket: bucket, password: password}, nil
}

// ArchiveSheet uploads the sheet file as JSON under sheets/{id}.json.
func (a *Archiver) ArchiveSheet(ctx context.Context, id string, f sheet.File) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal sheet file: %w", err)
	}

	contentType := "application/json"
	if a.password != "" {
		data, err = encryptGCM(data, a.password)
		if err != nil {
			return fmt.Errorf("encrypt sheet file: %w", err)
		}
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("sheets/%s.json", id)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"name":      f.PDFFilename,
			"rows":      fmt.Sprintf("%d", len(f.Sheet)),
			"encrypted": fmt.Sprintf("%t", a.password != ""),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().Str("key", key).Int("rows", len(f.Sheet)).Bool("encrypted", a.password != "").Msg("archived sheet to S3")
	return nil
}

// encryptGCM seals data with AES-256-GCM under a pbkdf2-derived key.
// Layout: magic(8) | salt(16) | nonce(12) | ciphertext.
func encryptGCM(data []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(gcmMagic)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// DecryptGCM opens an archive object sealed by encryptGCM.
func DecryptGCM(data []byte, password string) ([]byte, error) {
	if len(data) < len(gcmMagic)+16 || string(data[:len(gcmMagic)]) != gcmMagic {
		return nil, fmt.Errorf("not a %s archive object", gcmMagic)
	}
	rest := data[len(gcmMagic):]
	salt, rest := rest[:16], rest[16:]
	key := pbkdf2.Key([]byte(password), salt, 100000, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("archive object truncated")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
