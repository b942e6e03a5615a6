// Copyright 2025 The Scriptorium Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package upload pushes megadoc artifacts to an S3-compatible object store
// and flips their records to SUCCESS once the public URL is live.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"mime"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/scriptoriumhq/scriptorium/pkg/config"
	"github.com/scriptoriumhq/scriptorium/pkg/metrics"
	"github.com/scriptoriumhq/scriptorium/pkg/model"
	"github.com/scriptoriumhq/scriptorium/pkg/store"
)

// ErrUploadFailed means every attempt was exhausted. The megadoc record stays
// in SENDING; the file remains on disk for a manual retry.
var ErrUploadFailed = errors.New("upload failed")

// mime.TypeByExtension doesn't know Office types on every platform.
var extraMIMETypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".md":   "text/markdown",
}

// Uploader pushes files to the configured bucket.
type Uploader struct {
	api     s3manageriface.UploaderAPI
	store   *store.Store
	cfg     *config.Config
	retries int

	// backoff waits between attempts; tests stub it out.
	backoff func(ctx context.Context, d time.Duration) error
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// New builds an Uploader with a live S3 session from the configured endpoint
// and credentials.
func New(st *store.Store, cfg *config.Config) (*Uploader, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:    aws.String(cfg.S3.Endpoint),
		Region:      aws.String(cfg.S3.Region),
		Credentials: credentials.NewStaticCredentials(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 session: %w", err)
	}
	return &Uploader{
		api:     s3manager.NewUploader(sess),
		store:   st,
		cfg:     cfg,
		retries: cfg.DB.Retries,
		backoff: waitBackoff,
	}, nil
}

// NewWithAPI builds an Uploader over a caller-supplied client. Used by tests.
func NewWithAPI(api s3manageriface.UploaderAPI, st *store.Store, cfg *config.Config) *Uploader {
	return &Uploader{api: api, store: st, cfg: cfg, retries: cfg.DB.Retries, backoff: waitBackoff}
}

// isTransient reports whether an upload error is worth retrying. Throttling,
// timeouts, and network trouble are; credential and bucket errors are not.
func isTransient(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return request.IsErrorRetryable(aerr) || request.IsErrorThrottle(aerr)
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

func contentType(filetype string) string {
	if t, ok := extraMIMETypes[filetype]; ok {
		return t
	}
	if t := mime.TypeByExtension(filetype); t != "" {
		return t
	}
	return "application/octet-stream"
}

// UploadMegadoc sends a built megadoc to the object store. The object is
// world-readable and served as an attachment under its human filename. On
// success the record lands in SUCCESS and its URL goes live; on exhausted
// retries it stays in SENDING and ErrUploadFailed is returned. Only
// transient failures are retried.
func (u *Uploader) UploadMegadoc(ctx context.Context, md *model.Megadoc) error {
	localPath := filepath.Join(u.cfg.DataPath(), filepath.FromSlash(md.Path))
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("megadoc file %s: %w", localPath, store.ErrNotFound)
	}

	var lastErr error
	for attempt := 1; attempt <= u.retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = u.uploadOnce(ctx, md, localPath)
		if lastErr == nil {
			break
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt > u.retries {
			return fmt.Errorf("%w: megadoc %s after %d attempts: %v",
				ErrUploadFailed, md.GUID, attempt, lastErr)
		}
		metrics.UploadRetries.Inc()
		sleep := time.Duration(float64(attempt*attempt)+rand.Float64()) * time.Second
		slog.Warn("Upload failed, retrying", "megadoc", md.GUID,
			"error", lastErr, "sleep", sleep, "attempt", attempt)
		if err := u.backoff(ctx, sleep); err != nil {
			return err
		}
	}

	// The URL was derived when the record was created; it goes live now.
	if err := u.store.SetMegadocStatus(ctx, nil, md.GUID, model.StatusSuccess); err != nil {
		return err
	}
	md.Status = model.StatusSuccess

	slog.Info("Megadoc uploaded", "megadoc", md.GUID, "url", md.URL)
	return nil
}

func (u *Uploader) uploadOnce(ctx context.Context, md *model.Megadoc, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open megadoc file: %w", err)
	}
	defer f.Close()

	_, err = u.api.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:             aws.String(u.cfg.S3.Space),
		Key:                aws.String(md.Path),
		Body:               f,
		ACL:                aws.String("public-read"),
		ContentType:        aws.String(contentType(md.Filetype)),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", md.Filename)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", md.Path, err)
	}
	return nil
}
