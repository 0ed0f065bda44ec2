package services

import (
	"bytes"
	"chainwatch/internal/domain"
	"chainwatch/internal/platform/obs"
	"chainwatch/internal/ports"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// AttachmentInput is either a RawFile or a PreShaped attachment.
type AttachmentInput interface {
	attachmentInput()
}

// RawFile is an uploaded file whose bytes the batch will own.
type RawFile struct {
	Name     string
	MIMEType string
	Content  []byte
}

// PreShaped is an attachment that already points at external content.
// The batch does not own anything behind its URL.
type PreShaped struct {
	Attachment domain.FileAttachment
}

func (RawFile) attachmentInput()   {}
func (PreShaped) attachmentInput() {}

const maxParallelBlobOps = 5

var errNoBlobStore = errors.New("no blob store configured")

type uploadResult struct {
	index      int
	attachment domain.FileAttachment
	err        error
}

// resolveAttachments turns inputs into stored attachments, uploading raw
// files under batches/<id>/<n>-<name>. If any upload fails, blobs already
// written are released and an error is returned.
func resolveAttachments(
	ctx context.Context,
	batchID string,
	inputs []AttachmentInput,
	blobs ports.BlobStore,
	metrics *obs.Metrics,
) ([]domain.FileAttachment, error) {
	out := make([]domain.FileAttachment, len(inputs))

	raw := make(map[int]RawFile)
	for i, in := range inputs {
		switch a := in.(type) {
		case PreShaped:
			fa, err := checkPreShaped(a.Attachment, i)
			if err != nil {
				return nil, err
			}
			out[i] = fa
		case RawFile:
			if strings.TrimSpace(a.Name) == "" {
				return nil, domain.NewValidationError("attachments", fmt.Sprintf("file %d has no name", i+1))
			}
			raw[i] = a
		case nil:
			return nil, domain.NewValidationError("attachments", fmt.Sprintf("attachment %d is empty", i+1))
		default:
			return nil, fmt.Errorf("resolve attachments: unsupported input %T", in)
		}
	}
	if len(raw) == 0 {
		return out, nil
	}
	if blobs == nil {
		return nil, fmt.Errorf("resolve attachments: %w", errNoBlobStore)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, maxParallelBlobOps)
	resultsCh := make(chan uploadResult, len(raw))
	var wg sync.WaitGroup

	for i, f := range raw {
		wg.Add(1)
		go func(idx int, file RawFile) {
			sem <- struct{}{}
			defer wg.Done()
			defer func() { <-sem }()

			key := blobKey(batchID, idx+1, file.Name)
			info, err := blobs.Put(ctx, key, bytes.NewReader(file.Content), file.MIMEType)
			if err != nil {
				resultsCh <- uploadResult{index: idx, err: fmt.Errorf("upload %q: %w", file.Name, err)}
				cancel()
				return
			}

			resultsCh <- uploadResult{index: idx, attachment: domain.FileAttachment{
				Name:    file.Name,
				URL:     "blob:" + blobs.Driver() + "/" + info.Key,
				Type:    typeForMIME(file.MIMEType),
				BlobKey: info.Key,
			}}
		}(i, f)
	}

	wg.Wait()
	close(resultsCh)

	var uploadErr error
	var written []string
	for res := range resultsCh {
		if res.err != nil {
			if uploadErr == nil {
				uploadErr = res.err
			}
			continue
		}
		out[res.index] = res.attachment
		written = append(written, res.attachment.BlobKey)
	}
	if uploadErr != nil {
		releaseBlobs(context.WithoutCancel(ctx), batchID, written, blobs, metrics)
		return nil, fmt.Errorf("resolve attachments: %w", uploadErr)
	}

	return out, nil
}

func checkPreShaped(a domain.FileAttachment, i int) (domain.FileAttachment, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return a, domain.NewValidationError("attachments", fmt.Sprintf("attachment %d has no name", i+1))
	}
	if a.BlobKey != "" {
		return a, domain.NewValidationError("attachments", fmt.Sprintf("attachment %q cannot claim a blob key", a.Name))
	}
	if a.Type == "" {
		a.Type = domain.AttachmentOther
	}
	if !a.Type.Valid() {
		return a, domain.NewValidationError("attachments", fmt.Sprintf("attachment %q has unknown type %q", a.Name, a.Type))
	}
	return a, nil
}

func typeForMIME(mime string) domain.AttachmentType {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/") {
		return domain.AttachmentImage
	}
	return domain.AttachmentOther
}

func blobKey(batchID string, n int, name string) string {
	return fmt.Sprintf("batches/%s/%d-%s", safeSegment(batchID), n, safeSegment(name))
}

// safeSegment keeps a name usable as a single key segment.
func safeSegment(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "..", "_")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// releaseBlobs deletes each key once. Failures are logged and counted.
func releaseBlobs(ctx context.Context, batchID string, keys []string, blobs ports.BlobStore, metrics *obs.Metrics) {
	if len(keys) == 0 {
		return
	}

	sem := make(chan struct{}, maxParallelBlobOps)
	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(1)
		go func(k string) {
			sem <- struct{}{}
			defer wg.Done()
			defer func() { <-sem }()

			var err error
			if blobs == nil {
				err = errNoBlobStore
			} else if _, err = blobs.Delete(ctx, k); err == nil {
				metrics.AttachmentRelease(nil)
				return
			}

			rerr := &domain.AttachmentReleaseError{BatchID: batchID, BlobKey: k, Err: err}
			log.Printf("req_id=%s op=attachments.release err=%v", obs.RequestID(ctx), rerr)
			metrics.AttachmentRelease(rerr)
		}(key)
	}

	wg.Wait()
}

// droppedKeys returns the owned keys of before that after no longer holds.
func droppedKeys(before, after domain.Batch) []string {
	keep := make(map[string]struct{})
	for _, k := range after.OwnedBlobKeys() {
		keep[k] = struct{}{}
	}

	var dropped []string
	for _, k := range before.OwnedBlobKeys() {
		if _, ok := keep[k]; !ok {
			dropped = append(dropped, k)
		}
	}
	return dropped
}
