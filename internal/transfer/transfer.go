// Package transfer uploads message attachments to blob storage and reports
// progress while it does.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/blob"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/subscription"
)

var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrFileTooLarge = errors.New("file exceeds the upload limit")
)

const defaultContentType = "application/octet-stream"

// File is an upload request. Size must be the exact byte length of Body.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Progress is one upload status update. Percent never decreases during a
// successful upload. The last update carries Ref on success, or Err with
// Percent reset to 0 on failure.
type Progress struct {
	Percent int             `json:"percent"`
	Ref     *models.FileRef `json:"ref,omitempty"`
	Err     error           `json:"-"`
}

type Options struct {
	AppID    string
	MaxBytes int64
	Now      func() time.Time
}

type Adapter struct {
	store  blob.Store
	opts   Options
	logger *zap.Logger
}

func NewAdapter(store blob.Store, opts Options, logger *zap.Logger) *Adapter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Adapter{store: store, opts: opts, logger: logger}
}

// ObjectKey is where an upload by userID into scope is stored.
func (a *Adapter) ObjectKey(scope models.Scope, userID uuid.UUID, name string) string {
	return path.Join(
		"uploads",
		a.opts.AppID,
		scope.String(),
		userID.String(),
		fmt.Sprintf("%d_%s", a.opts.Now().UnixMilli(), SanitizeName(name)),
	)
}

// Upload starts storing f and returns its progress stream. Validation
// failures end the stream before any byte is written. Closing the stream
// cancels the upload.
func (a *Adapter) Upload(ctx context.Context, scope models.Scope, senderID uuid.UUID, f File) *subscription.Subscription[Progress] {
	ctx, cancel := context.WithCancel(ctx)
	sub := subscription.New[Progress](cancel)

	if err := a.validate(f); err != nil {
		cancel()
		a.fail(sub, "validate", err)
		return sub
	}

	go func() {
		defer cancel()

		contentType := f.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}
		key := a.ObjectKey(scope, senderID, f.Name)
		body := &progressReader{r: f.Body, size: f.Size, report: func(pct int) {
			sub.Send(Progress{Percent: pct})
		}}

		url, err := a.store.Put(ctx, key, body, f.Size, contentType)
		if err != nil {
			a.logger.Warn("upload failed",
				zap.String("key", key), zap.String("scope", scope.String()), zap.Error(err))
			a.fail(sub, "upload", err)
			return
		}

		sub.Send(Progress{
			Percent: 100,
			Ref: &models.FileRef{
				URL:         url,
				Name:        f.Name,
				ContentType: contentType,
				Size:        f.Size,
			},
		})
		sub.End()
	}()

	return sub
}

// DeleteBlob removes the stored file behind ref. Errors are logged and
// dropped.
func (a *Adapter) DeleteBlob(ctx context.Context, ref models.FileRef) {
	if ref.URL == "" {
		return
	}
	if err := a.store.Delete(ctx, ref.URL); err != nil {
		a.logger.Warn("failed to delete blob",
			zap.String("url", ref.URL), zap.Error(err))
	}
}

func (a *Adapter) validate(f File) error {
	if f.Body == nil || f.Size <= 0 {
		return ErrEmptyFile
	}
	if a.opts.MaxBytes > 0 && f.Size > a.opts.MaxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, f.Size, a.opts.MaxBytes)
	}
	return nil
}

func (a *Adapter) fail(sub *subscription.Subscription[Progress], op string, err error) {
	terr := &errs.TransferError{Op: op, Err: err}
	sub.Send(Progress{Percent: 0, Err: terr})
	sub.Fail(terr)
}

// SanitizeName keeps the base name of a client-supplied file name and
// replaces anything outside [A-Za-z0-9._-] with '_'.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

// progressReader reports whole-percent progress as the store consumes the
// body. It stops at 99: 100 is reserved for a stored file.
type progressReader struct {
	r      io.Reader
	size   int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.size)
		if pct > 99 {
			pct = 99
		}
		if pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
