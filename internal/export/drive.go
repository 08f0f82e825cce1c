package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/sjawhar/pitchspeak/internal/estimate"
)

// DriveUploader stores PDF reports in a Google Drive folder. Uploading the
// same conversation again replaces the earlier file.
type DriveUploader struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewDriveUploader(ctx context.Context, credPath, folderID string) (*DriveUploader, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return newDriveUploader(svc, folderID), nil
}

func newDriveUploader(svc *drive.Service, folderID string) *DriveUploader {
	return &DriveUploader{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}
}

func (u *DriveUploader) Upload(ctx context.Context, rec estimate.Record, pdf []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if fileID, ok := u.fileIDs[rec.ID]; ok {
		_, err := u.service.Files.Update(fileID, &drive.File{}).Media(bytes.NewReader(pdf)).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("drive update: %w", err)
		}
		return fileID, nil
	}

	file, err := u.service.Files.Create(&drive.File{
		Name:     fmt.Sprintf("project-estimation-%s.pdf", rec.ID),
		MimeType: "application/pdf",
		Parents:  []string{u.folderID},
	}).Media(bytes.NewReader(pdf)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("drive create: %w", err)
	}

	u.fileIDs[rec.ID] = file.Id
	return file.Id, nil
}
